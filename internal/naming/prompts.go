package naming

import (
	"strconv"
	"strings"

	"github.com/Yuikij/japanesename/internal/catalog"
)

// Prompt construction is a pure function of the catalogue templates, the
// running answer history and, for follow-ups, the anchor question/answer the
// chain is rooted on.

// PresetOptionsPrompt builds the option-generation prompt for one preset
// advanced question.
func PresetOptionsPrompt(cat *catalog.Catalog, questionID, question string) string {
	tmpl := cat.PresetOptionsTemplate(questionID)
	return strings.ReplaceAll(tmpl, "{question}", question)
}

// AIAdvancedQuestionPrompt builds the prompt generating one new personalized
// advanced question. questionIndex is zero-based; the template slot is
// one-based.
func AIAdvancedQuestionPrompt(cat *catalog.Catalog, answers []QA, questionIndex int) string {
	prompt := strings.ReplaceAll(cat.Prompts.AIAdvancedQuestion, "{answersContext}", answersBlock(answers))
	return strings.ReplaceAll(prompt, "{questionIndex}", strconv.Itoa(questionIndex+1))
}

// FollowUpPrompt builds the prompt generating the next follow-up, anchored
// on the original advanced question/answer pair the chain is rooted on.
func FollowUpPrompt(cat *catalog.Catalog, originalQuestion, answer string, level int, answers []QA) string {
	guide := strings.ReplaceAll(cat.Prompts.FollowUpGuide, "{followUpLevel}", strconv.Itoa(level))

	prompt := cat.Prompts.FollowUpQuestion
	prompt = strings.ReplaceAll(prompt, "{originalQuestion}", originalQuestion)
	prompt = strings.ReplaceAll(prompt, "{answer}", answer)
	prompt = strings.ReplaceAll(prompt, "{answersContext}", answersLines(answers))
	return strings.ReplaceAll(prompt, "{levelPrompt}", guide)
}

// FinalNamingPrompt builds the terminal generation prompt carrying the
// entire answer history.
func FinalNamingPrompt(cat *catalog.Catalog, answers []QA) string {
	return strings.ReplaceAll(cat.Prompts.FinalNaming, "{answersContext}", answersBlock(answers))
}

// CrestPrompt builds the family crest design prompt.
func CrestPrompt(cat *catalog.Catalog, name, meaning, culturalBackground, personalityMatch string) string {
	prompt := cat.Prompts.FamilyCrest
	prompt = strings.ReplaceAll(prompt, "{name}", name)
	prompt = strings.ReplaceAll(prompt, "{meaning}", meaning)
	prompt = strings.ReplaceAll(prompt, "{culturalBackground}", culturalBackground)
	return strings.ReplaceAll(prompt, "{personalityMatch}", personalityMatch)
}

// answersLines renders the history as compact "question: answer" lines.
// The skip sentinel is rendered literally.
func answersLines(answers []QA) string {
	lines := make([]string, len(answers))
	for i, qa := range answers {
		lines[i] = qa.Question + ": " + qa.Answer
	}
	return strings.Join(lines, "\n")
}

// answersBlock renders the history as spaced question/answer blocks for the
// longer-form prompts.
func answersBlock(answers []QA) string {
	blocks := make([]string, len(answers))
	for i, qa := range answers {
		blocks[i] = "Q: " + qa.Question + "\nA: " + qa.Answer
	}
	return strings.Join(blocks, "\n\n")
}
