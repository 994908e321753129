package naming

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Yuikij/japanesename/internal/catalog"
	"github.com/Yuikij/japanesename/internal/config"
	"github.com/Yuikij/japanesename/internal/domain"
	"github.com/Yuikij/japanesename/internal/gemini"
)

// Chatter sends one user turn on a logical conversation and returns the
// model's text. Implemented by chatclient.Client; tests substitute fakes.
type Chatter interface {
	SendMessage(ctx context.Context, message, conversationID string, cfg *gemini.GenerationConfig) (string, error)
}

// conversationClearer is implemented by chat clients that keep per-id
// histories; Restart drops them when available.
type conversationClearer interface {
	ClearAllConversations()
}

// Logical conversation threads. Each purpose gets its own history so
// contexts do not cross-contaminate.
const (
	convPresetOptions = "preset-options"
	convFollowUp      = "follow-up"
	convAIAdvanced    = "ai-advanced"
	convNamingFinal   = "naming-final"
)

// Quotas are the validated phase bounds the orchestrator runs with.
type Quotas struct {
	AIQuestionQuota  int
	MaxFollowUpDepth int

	// LenientAnchor silently degrades to empty anchor context when a
	// follow-up parent answer cannot be resolved, matching the historical
	// behavior. When false, the operation fails loudly.
	LenientAnchor bool
}

// DefaultQuotas returns the authoritative default phase bounds.
func DefaultQuotas() Quotas {
	return Quotas{
		AIQuestionQuota:  config.DefaultAIQuestionQuota,
		MaxFollowUpDepth: config.DefaultMaxFollowUpDepth,
	}
}

// Orchestrator owns the conversation state machine. All state mutation goes
// through its operations; callers read copies via State. Operations are
// serialized: a dispatch while another operation is in flight is rejected
// with domain.ErrBusy rather than queued.
type Orchestrator struct {
	opMu    sync.Mutex   // serializes operations; TryLock implements the busy gate
	stateMu sync.RWMutex // guards state/result for concurrent readers

	cat    *catalog.Catalog
	chat   Chatter
	quotas Quotas
	logger *slog.Logger

	sessionID string
	state     ConversationState
	result    *NamingResult
}

// NewOrchestrator creates an orchestrator in the initial basic phase.
// Start must be called before answering to seed the preset question options.
func NewOrchestrator(cat *catalog.Catalog, chat Chatter, quotas Quotas, logger *slog.Logger) *Orchestrator {
	if quotas.AIQuestionQuota <= 0 {
		quotas.AIQuestionQuota = config.DefaultAIQuestionQuota
	}
	if quotas.MaxFollowUpDepth <= 0 {
		quotas.MaxFollowUpDepth = config.DefaultMaxFollowUpDepth
	}
	return &Orchestrator{
		cat:       cat,
		chat:      chat,
		quotas:    quotas,
		logger:    logger,
		sessionID: uuid.NewString(),
		state:     ConversationState{Phase: PhaseBasic},
	}
}

// State returns a copy of the conversation state.
func (o *Orchestrator) State() ConversationState {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return copyState(&o.state)
}

// Result returns the terminal naming result, or nil before completion.
func (o *Orchestrator) Result() *NamingResult {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.result
}

// CurrentBasicQuestion returns the basic question awaiting an answer.
func (o *Orchestrator) CurrentBasicQuestion() (catalog.BasicQuestion, bool) {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if o.state.Phase != PhaseBasic || o.state.BasicIndex >= len(o.cat.BasicQuestions) {
		return catalog.BasicQuestion{}, false
	}
	return o.cat.BasicQuestions[o.state.BasicIndex], true
}

// CurrentAdvancedQuestion returns the advanced question awaiting an answer.
func (o *Orchestrator) CurrentAdvancedQuestion() (AdvancedQuestion, bool) {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if o.state.Phase != PhaseAdvancedPreset && o.state.Phase != PhaseAdvancedAI {
		return AdvancedQuestion{}, false
	}
	if o.state.AdvancedIndex >= len(o.state.AdvancedQuestions) {
		return AdvancedQuestion{}, false
	}
	return o.state.AdvancedQuestions[o.state.AdvancedIndex], true
}

// CurrentFollowUpQuestion returns the follow-up awaiting an answer.
func (o *Orchestrator) CurrentFollowUpQuestion() (FollowUpQuestion, bool) {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if o.state.Phase != PhaseFollowUp || len(o.state.FollowUpQuestions) == 0 {
		return FollowUpQuestion{}, false
	}
	return o.state.FollowUpQuestions[len(o.state.FollowUpQuestions)-1], true
}

// Start seeds the preset advanced questions, generating their options from
// the model. Option parse failures fall back to the catalogue's fixed
// default list; network failures are recorded on the state and returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.opMu.TryLock() {
		return domain.ErrBusy
	}
	defer o.opMu.Unlock()
	return o.seedPresetQuestions(ctx)
}

// Restart discards all state and answer history, drops the chat histories,
// and reinitializes the preset question options from scratch.
func (o *Orchestrator) Restart(ctx context.Context) error {
	if !o.opMu.TryLock() {
		return domain.ErrBusy
	}
	defer o.opMu.Unlock()

	if clearer, ok := o.chat.(conversationClearer); ok {
		clearer.ClearAllConversations()
	}

	o.stateMu.Lock()
	o.sessionID = uuid.NewString()
	o.state = ConversationState{Phase: PhaseBasic}
	o.result = nil
	o.stateMu.Unlock()

	return o.seedPresetQuestions(ctx)
}

// AnswerBasic records an answer to the current basic question. Required
// questions reject empty answers: no transition, no append.
func (o *Orchestrator) AnswerBasic(answer string) error {
	if !o.opMu.TryLock() {
		return domain.ErrBusy
	}
	defer o.opMu.Unlock()

	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	if o.state.Phase != PhaseBasic {
		return fmt.Errorf("%w: not in the basic phase", domain.ErrValidation)
	}
	if o.state.BasicIndex >= len(o.cat.BasicQuestions) {
		return fmt.Errorf("%w: no basic question pending", domain.ErrValidation)
	}

	question := o.cat.BasicQuestions[o.state.BasicIndex]
	answer = strings.TrimSpace(answer)
	if question.Required && answer == "" {
		return fmt.Errorf("%w: question %q requires an answer", domain.ErrValidation, question.ID)
	}

	o.state.Answers = append(o.state.Answers, QuestionAnswer{
		QuestionID: question.ID,
		Question:   question.Question,
		Answer:     answer,
		Kind:       AnswerKindBasic,
	})

	if o.state.BasicIndex < len(o.cat.BasicQuestions)-1 {
		o.state.BasicIndex++
	} else {
		o.state.Phase = PhaseAdvancedPreset
		o.state.AdvancedIndex = 0
	}
	return nil
}

// AnswerAdvanced records an answer (or explicit skip) to the current
// advanced question. A skip bypasses follow-up and advances directly; an
// answer enters the follow-up phase at level 1.
func (o *Orchestrator) AnswerAdvanced(ctx context.Context, answer string, skipped bool) error {
	if !o.opMu.TryLock() {
		return domain.ErrBusy
	}
	defer o.opMu.Unlock()

	o.stateMu.Lock()
	if o.state.Phase != PhaseAdvancedPreset && o.state.Phase != PhaseAdvancedAI {
		o.stateMu.Unlock()
		return fmt.Errorf("%w: not in an advanced phase", domain.ErrValidation)
	}
	if o.state.AdvancedIndex >= len(o.state.AdvancedQuestions) {
		o.stateMu.Unlock()
		return fmt.Errorf("%w: no advanced question pending", domain.ErrValidation)
	}

	question := o.state.AdvancedQuestions[o.state.AdvancedIndex]
	answer = strings.TrimSpace(answer)
	if !skipped && answer == "" {
		o.stateMu.Unlock()
		return fmt.Errorf("%w: answer is empty", domain.ErrValidation)
	}

	kind := AnswerKindAdvancedPreset
	if o.state.Phase == PhaseAdvancedAI {
		kind = AnswerKindAdvancedAI
	}
	if skipped {
		answer = SkippedAnswer
	}

	qa := QuestionAnswer{
		QuestionID: question.ID,
		Question:   question.Question,
		Answer:     answer,
		Kind:       kind,
		Skipped:    skipped,
	}
	o.state.Answers = append(o.state.Answers, qa)
	o.stateMu.Unlock()

	if skipped {
		return o.advanceAdvanced(ctx)
	}
	return o.startFollowUp(ctx, qa)
}

// AnswerFollowUp records an answer (or skip) to the current follow-up. A
// non-skip answer below the depth bound generates the next level; reaching
// the bound or skipping advances to the next advanced question.
func (o *Orchestrator) AnswerFollowUp(ctx context.Context, answer string, skipped bool) error {
	if !o.opMu.TryLock() {
		return domain.ErrBusy
	}
	defer o.opMu.Unlock()

	o.stateMu.Lock()
	if o.state.Phase != PhaseFollowUp || len(o.state.FollowUpQuestions) == 0 {
		o.stateMu.Unlock()
		return fmt.Errorf("%w: no follow-up pending", domain.ErrValidation)
	}

	followUp := o.state.FollowUpQuestions[len(o.state.FollowUpQuestions)-1]
	answer = strings.TrimSpace(answer)
	if !skipped && answer == "" {
		o.stateMu.Unlock()
		return fmt.Errorf("%w: answer is empty", domain.ErrValidation)
	}
	if skipped {
		answer = SkippedAnswer
	}

	o.state.Answers = append(o.state.Answers, QuestionAnswer{
		QuestionID:       followUp.ID,
		Question:         followUp.Question,
		Answer:           answer,
		Kind:             AnswerKindFollowUp,
		FollowUpLevel:    o.state.FollowUpLevel,
		ParentQuestionID: followUp.ParentQuestionID,
		Skipped:          skipped,
	})
	level := o.state.FollowUpLevel
	o.stateMu.Unlock()

	if !skipped && level < o.quotas.MaxFollowUpDepth {
		return o.nextFollowUp(ctx)
	}
	return o.advanceAdvanced(ctx)
}

// SkipToNextTopic abandons the current follow-up chain and advances to the
// next advanced question without recording an answer.
func (o *Orchestrator) SkipToNextTopic(ctx context.Context) error {
	if !o.opMu.TryLock() {
		return domain.ErrBusy
	}
	defer o.opMu.Unlock()

	o.stateMu.RLock()
	phase := o.state.Phase
	o.stateMu.RUnlock()
	if phase != PhaseFollowUp {
		return fmt.Errorf("%w: not in the follow-up phase", domain.ErrValidation)
	}
	return o.advanceAdvanced(ctx)
}

// GenerateNow short-circuits the question flow and generates the final
// result from whatever has been answered so far.
func (o *Orchestrator) GenerateNow(ctx context.Context) error {
	if !o.opMu.TryLock() {
		return domain.ErrBusy
	}
	defer o.opMu.Unlock()

	o.stateMu.RLock()
	phase := o.state.Phase
	o.stateMu.RUnlock()
	if phase == PhaseComplete {
		return fmt.Errorf("%w: conversation already complete", domain.ErrValidation)
	}
	return o.generateFinal(ctx)
}

// seedPresetQuestions generates option lists for every preset question.
// Callers hold opMu.
func (o *Orchestrator) seedPresetQuestions(ctx context.Context) error {
	o.beginLoad()

	questions := make([]AdvancedQuestion, 0, len(o.cat.PresetQuestions))
	for _, preset := range o.cat.PresetQuestions {
		prompt := PresetOptionsPrompt(o.cat, preset.ID, preset.Question)
		response, err := o.chat.SendMessage(ctx, prompt, o.convID(convPresetOptions), nil)
		if err != nil {
			return o.failLoad(err)
		}

		var options []string
		if err := DecodeResponse(response, &options); err != nil || len(options) == 0 {
			// Options only affect UI choices, so a parse failure degrades
			// to the fixed default list instead of halting.
			o.logger.Warn("preset option generation unparseable, using defaults",
				"question_id", preset.ID, "error", err)
			options = append([]string(nil), o.cat.DefaultOptions...)
		}
		questions = append(questions, AdvancedQuestion{
			ID:       preset.ID,
			Question: preset.Question,
			Options:  options,
			Kind:     QuestionKindPreset,
		})
	}

	o.stateMu.Lock()
	o.state.AdvancedQuestions = questions
	o.state.IsLoading = false
	o.stateMu.Unlock()
	return nil
}

// startFollowUp opens a level-1 follow-up chain rooted on the given answer.
// Callers hold opMu.
func (o *Orchestrator) startFollowUp(ctx context.Context, parent QuestionAnswer) error {
	o.stateMu.Lock()
	o.state.Phase = PhaseFollowUp
	o.state.FollowUpLevel = 1
	o.state.FollowUpParentID = parent.QuestionID
	o.stateMu.Unlock()
	o.beginLoad()

	prompt := FollowUpPrompt(o.cat, parent.Question, parent.Answer, 1, o.answerPairs())
	response, err := o.chat.SendMessage(ctx, prompt, o.convID(convFollowUp), nil)
	if err != nil {
		return o.failLoad(err)
	}

	var payload questionPayload
	if err := DecodeResponse(response, &payload); err != nil {
		return o.failLoad(err)
	}

	o.stateMu.Lock()
	o.state.FollowUpQuestions = append(o.state.FollowUpQuestions, FollowUpQuestion{
		ID:               followUpID(1),
		Question:         payload.Question,
		Options:          payload.Options,
		ParentQuestionID: parent.QuestionID,
		Level:            1,
	})
	o.state.IsLoading = false
	o.stateMu.Unlock()
	return nil
}

// nextFollowUp generates the next-level follow-up, re-deriving the original
// advanced answer as anchor context. Callers hold opMu.
func (o *Orchestrator) nextFollowUp(ctx context.Context) error {
	o.beginLoad()

	o.stateMu.RLock()
	parentID := o.state.FollowUpParentID
	level := o.state.FollowUpLevel
	o.stateMu.RUnlock()

	anchorQuestion, anchorAnswer, found := o.findAnchor(parentID)
	if !found && !o.quotas.LenientAnchor {
		return o.failLoad(fmt.Errorf("%w: %q", domain.ErrAnchorNotFound, parentID))
	}

	prompt := FollowUpPrompt(o.cat, anchorQuestion, anchorAnswer, level+1, o.answerPairs())
	response, err := o.chat.SendMessage(ctx, prompt, o.convID(convFollowUp), nil)
	if err != nil {
		return o.failLoad(err)
	}

	var payload questionPayload
	if err := DecodeResponse(response, &payload); err != nil {
		return o.failLoad(err)
	}

	o.stateMu.Lock()
	o.state.FollowUpQuestions = append(o.state.FollowUpQuestions, FollowUpQuestion{
		ID:               followUpID(level + 1),
		Question:         payload.Question,
		Options:          payload.Options,
		ParentQuestionID: parentID,
		Level:            level + 1,
	})
	o.state.FollowUpLevel = level + 1
	o.state.IsLoading = false
	o.stateMu.Unlock()
	return nil
}

// advanceAdvanced implements the "advance advanced question" procedure: next
// preset if any remain, else a new AI question until the quota is met, else
// final generation. Callers hold opMu.
func (o *Orchestrator) advanceAdvanced(ctx context.Context) error {
	o.stateMu.Lock()
	o.state.FollowUpLevel = 0
	o.state.FollowUpParentID = ""

	presetCount := 0
	aiCount := 0
	for _, q := range o.state.AdvancedQuestions {
		switch q.Kind {
		case QuestionKindPreset:
			presetCount++
		case QuestionKindAIGenerated:
			aiCount++
		}
	}

	if o.state.AdvancedIndex+1 < presetCount {
		o.state.AdvancedIndex++
		o.state.Phase = PhaseAdvancedPreset
		o.stateMu.Unlock()
		return nil
	}
	o.stateMu.Unlock()

	if aiCount < o.quotas.AIQuestionQuota {
		return o.generateAIQuestion(ctx, aiCount)
	}
	return o.generateFinal(ctx)
}

// generateAIQuestion asks the model for one new personalized advanced
// question and makes it current. Callers hold opMu.
func (o *Orchestrator) generateAIQuestion(ctx context.Context, aiIndex int) error {
	o.stateMu.Lock()
	o.state.Phase = PhaseAdvancedAI
	o.stateMu.Unlock()
	o.beginLoad()

	prompt := AIAdvancedQuestionPrompt(o.cat, o.answerPairs(), aiIndex)
	response, err := o.chat.SendMessage(ctx, prompt, o.convID(convAIAdvanced), nil)
	if err != nil {
		return o.failLoad(err)
	}

	var payload questionPayload
	if err := DecodeResponse(response, &payload); err != nil {
		return o.failLoad(err)
	}

	o.stateMu.Lock()
	o.state.AdvancedQuestions = append(o.state.AdvancedQuestions, AdvancedQuestion{
		ID:       fmt.Sprintf("ai-%d", time.Now().UnixMilli()),
		Question: payload.Question,
		Options:  payload.Options,
		Kind:     QuestionKindAIGenerated,
	})
	o.state.AdvancedIndex = len(o.state.AdvancedQuestions) - 1
	o.state.IsLoading = false
	o.stateMu.Unlock()
	return nil
}

// generateFinal issues the terminal generation call carrying the entire
// answer history. The phase settles at complete whether or not the call
// succeeds. Callers hold opMu.
func (o *Orchestrator) generateFinal(ctx context.Context) error {
	o.stateMu.Lock()
	o.state.Phase = PhaseGenerating
	o.stateMu.Unlock()
	o.beginLoad()

	prompt := FinalNamingPrompt(o.cat, o.answerPairs())
	response, err := o.chat.SendMessage(ctx, prompt, o.convID(convNamingFinal), &gemini.GenerationConfig{
		Temperature:     0.9,
		MaxOutputTokens: 4000,
	})
	if err != nil {
		return o.completeWithError(err)
	}

	var result NamingResult
	if err := DecodeResponse(response, &result); err != nil {
		return o.completeWithError(err)
	}

	o.stateMu.Lock()
	o.result = &result
	o.state.Phase = PhaseComplete
	o.state.IsLoading = false
	o.stateMu.Unlock()

	o.logger.Info("naming complete",
		"names", len(result.Names),
		"answers", len(o.State().Answers),
	)
	return nil
}

// findAnchor walks the answer history for the entry whose question id
// matches the stored follow-up parent.
func (o *Orchestrator) findAnchor(parentID string) (question, answer string, found bool) {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	for _, qa := range o.state.Answers {
		if qa.QuestionID == parentID {
			return qa.Question, qa.Answer, true
		}
	}
	return "", "", false
}

// answerPairs reduces the history to the {question, answer} pairs rendered
// into prompts.
func (o *Orchestrator) answerPairs() []QA {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	pairs := make([]QA, len(o.state.Answers))
	for i, qa := range o.state.Answers {
		pairs[i] = QA{Question: qa.Question, Answer: qa.Answer}
	}
	return pairs
}

func (o *Orchestrator) convID(purpose string) string {
	return purpose + "-" + o.sessionID
}

func (o *Orchestrator) beginLoad() {
	o.stateMu.Lock()
	o.state.IsLoading = true
	o.state.Error = ""
	o.stateMu.Unlock()
}

// failLoad records a mid-flow failure: the machine stays in its phase with
// isLoading=false so the user can retry the same action.
func (o *Orchestrator) failLoad(err error) error {
	o.stateMu.Lock()
	o.state.IsLoading = false
	o.state.Error = err.Error()
	o.stateMu.Unlock()
	return err
}

// completeWithError records a generation-stage failure; the phase still
// settles at complete.
func (o *Orchestrator) completeWithError(err error) error {
	o.stateMu.Lock()
	o.state.Phase = PhaseComplete
	o.state.IsLoading = false
	o.state.Error = err.Error()
	o.stateMu.Unlock()
	return err
}

// questionPayload is the JSON shape the model returns for generated
// questions (AI advanced questions and follow-ups).
type questionPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

func followUpID(level int) string {
	return fmt.Sprintf("followup-%d-%d", time.Now().UnixMilli(), level)
}

func copyState(s *ConversationState) ConversationState {
	out := *s
	out.Answers = append([]QuestionAnswer(nil), s.Answers...)
	out.FollowUpQuestions = make([]FollowUpQuestion, len(s.FollowUpQuestions))
	for i, q := range s.FollowUpQuestions {
		q.Options = append([]string(nil), q.Options...)
		out.FollowUpQuestions[i] = q
	}
	out.AdvancedQuestions = make([]AdvancedQuestion, len(s.AdvancedQuestions))
	for i, q := range s.AdvancedQuestions {
		q.Options = append([]string(nil), q.Options...)
		out.AdvancedQuestions[i] = q
	}
	return out
}
