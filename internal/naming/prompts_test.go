package naming

import (
	"strings"
	"testing"

	"github.com/Yuikij/japanesename/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load("en")
	if err != nil {
		t.Fatalf("loading catalogue: %v", err)
	}
	return cat
}

func TestPresetOptionsPrompt(t *testing.T) {
	cat := testCatalog(t)

	prompt := PresetOptionsPrompt(cat, "historicalPreference", "Which era speaks to you?")
	if !strings.Contains(prompt, "Which era speaks to you?") {
		t.Errorf("prompt missing question text: %q", prompt)
	}
	if strings.Contains(prompt, "{question}") {
		t.Errorf("prompt has unsubstituted placeholder: %q", prompt)
	}
}

func TestPresetOptionsPromptUnknownIDUsesDefaultTemplate(t *testing.T) {
	cat := testCatalog(t)

	known := PresetOptionsPrompt(cat, "historicalPreference", "Q")
	unknown := PresetOptionsPrompt(cat, "no-such-question", "Q")
	if unknown == "" {
		t.Fatal("expected default template for unknown question id")
	}
	if known == unknown {
		t.Error("expected question-specific template to differ from default")
	}
}

func TestAIAdvancedQuestionPromptIndexIsOneBased(t *testing.T) {
	cat := testCatalog(t)

	prompt := AIAdvancedQuestionPrompt(cat, []QA{{Question: "Gender?", Answer: "female"}}, 0)
	if !strings.Contains(prompt, "1") {
		t.Errorf("prompt should carry the one-based question number: %q", prompt)
	}
	if !strings.Contains(prompt, "Gender?") || !strings.Contains(prompt, "female") {
		t.Errorf("prompt missing answer context: %q", prompt)
	}
	if strings.Contains(prompt, "{answersContext}") || strings.Contains(prompt, "{questionIndex}") {
		t.Errorf("prompt has unsubstituted placeholders: %q", prompt)
	}
}

func TestFollowUpPromptCarriesAnchorAndLevel(t *testing.T) {
	cat := testCatalog(t)

	answers := []QA{
		{Question: "Era?", Answer: "Heian"},
		{Question: "Character?", Answer: SkippedAnswer},
	}
	prompt := FollowUpPrompt(cat, "Era?", "Heian", 2, answers)

	for _, want := range []string{"Era?", "Heian", "2"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q: %q", want, prompt)
		}
	}
	// Skipped answers are rendered literally, not filtered.
	if !strings.Contains(prompt, SkippedAnswer) {
		t.Errorf("prompt should render the skip sentinel verbatim: %q", prompt)
	}
	for _, placeholder := range []string{"{originalQuestion}", "{answer}", "{answersContext}", "{levelPrompt}", "{followUpLevel}"} {
		if strings.Contains(prompt, placeholder) {
			t.Errorf("prompt has unsubstituted placeholder %s", placeholder)
		}
	}
}

func TestFinalNamingPromptRendersFullHistory(t *testing.T) {
	cat := testCatalog(t)

	answers := []QA{
		{Question: "Gender?", Answer: "male"},
		{Question: "Your name?", Answer: "Alex"},
		{Question: "Era?", Answer: SkippedAnswer},
	}
	prompt := FinalNamingPrompt(cat, answers)

	for _, qa := range answers {
		if !strings.Contains(prompt, qa.Question) || !strings.Contains(prompt, qa.Answer) {
			t.Errorf("prompt missing history entry %q -> %q", qa.Question, qa.Answer)
		}
	}
	if strings.Contains(prompt, "{answersContext}") {
		t.Error("prompt has unsubstituted answers placeholder")
	}
}

func TestCrestPrompt(t *testing.T) {
	cat := testCatalog(t)

	prompt := CrestPrompt(cat, "Sakura Tanaka", "cherry blossom", "spring festivals", "gentle")
	for _, want := range []string{"Sakura Tanaka", "cherry blossom", "spring festivals", "gentle"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
