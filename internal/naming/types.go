// Package naming implements the conversation engine that walks a user
// through the multi-phase naming questionnaire and turns the accumulated
// answers into generated Japanese names.
package naming

// Phase is the conversation state machine phase.
type Phase string

const (
	PhaseBasic          Phase = "basic"
	PhaseAdvancedPreset Phase = "advanced-preset"
	PhaseAdvancedAI     Phase = "advanced-ai"
	PhaseFollowUp       Phase = "follow-up"
	PhaseGenerating     Phase = "generating"
	PhaseComplete       Phase = "complete"
)

// Answer kinds recorded in the history.
const (
	AnswerKindBasic          = "basic"
	AnswerKindAdvancedPreset = "advanced-preset"
	AnswerKindAdvancedAI     = "advanced-ai"
	AnswerKindFollowUp       = "follow-up"
)

// Advanced question kinds.
const (
	QuestionKindPreset      = "preset"
	QuestionKindAIGenerated = "ai-generated"
)

// SkippedAnswer is the literal sentinel recorded for skipped questions and
// rendered as-is into prompts.
const SkippedAnswer = "skipped"

// QuestionAnswer is one recorded response. Immutable once appended; the
// ordered answer sequence is the durable memory of the conversation.
type QuestionAnswer struct {
	QuestionID       string `json:"questionId"`
	Question         string `json:"question"`
	Answer           string `json:"answer"`
	Kind             string `json:"kind"`
	FollowUpLevel    int    `json:"followUpLevel,omitempty"`
	ParentQuestionID string `json:"parentQuestionId,omitempty"`
	Skipped          bool   `json:"skipped,omitempty"`
}

// AdvancedQuestion is a question offered in the advanced phases. Preset
// instances are seeded at start with empty options; the options are filled
// once by the model and then treated as immutable.
type AdvancedQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Kind     string   `json:"kind"`
}

// FollowUpQuestion is a transient probing question chained to a parent
// advanced question.
type FollowUpQuestion struct {
	ID               string   `json:"id"`
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	ParentQuestionID string   `json:"parentQuestionId"`
	Level            int      `json:"level"`
}

// ConversationState is the mutable aggregate the orchestrator owns. Callers
// only ever see copies.
type ConversationState struct {
	Phase             Phase              `json:"phase"`
	BasicIndex        int                `json:"basicIndex"`
	AdvancedIndex     int                `json:"advancedIndex"`
	FollowUpLevel     int                `json:"followUpLevel"`
	Answers           []QuestionAnswer   `json:"answers"`
	AdvancedQuestions []AdvancedQuestion `json:"advancedQuestions"`
	FollowUpQuestions []FollowUpQuestion `json:"followUpQuestions"`
	FollowUpParentID  string             `json:"followUpParentId,omitempty"`
	IsLoading         bool               `json:"isLoading"`
	Error             string             `json:"error,omitempty"`
}

// GeneratedName is one suggested name in the terminal result.
type GeneratedName struct {
	FullName           string       `json:"fullName"`
	Surname            string       `json:"surname"`
	GivenName          string       `json:"givenName"`
	Reading            string       `json:"reading"`
	Meaning            string       `json:"meaning"`
	SurnameOrigin      string       `json:"surnameOrigin"`
	Reason             string       `json:"reason"`
	CulturalBackground string       `json:"culturalBackground"`
	PersonalityMatch   string       `json:"personalityMatch"`
	FamilyCrest        *FamilyCrest `json:"familyCrest,omitempty"`
}

// FamilyCrest is a decorative crest attached post-hoc to a GeneratedName.
// Mutated in place per name entry; crest requests for distinct indexes may
// be in flight concurrently.
type FamilyCrest struct {
	Image       string `json:"image"` // data URL
	Prompt      string `json:"prompt"`
	Explanation string `json:"explanation"`
	Generating  bool   `json:"generating,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NamingResult is the terminal artifact of a successful final generation.
type NamingResult struct {
	Names               []GeneratedName `json:"names"`
	Explanation         string          `json:"explanation"`
	CulturalContext     string          `json:"culturalContext"`
	PersonalityAnalysis string          `json:"personalityAnalysis"`
}

// QA is a reduced {question, answer} pair rendered into prompts.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
