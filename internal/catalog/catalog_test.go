package catalog

import (
	"strings"
	"testing"
)

func TestLoadAllSupportedLocales(t *testing.T) {
	catalogs, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	for _, locale := range SupportedLocales() {
		cat, ok := catalogs[locale]
		if !ok {
			t.Fatalf("missing catalogue for %q", locale)
		}
		if cat.Locale != locale {
			t.Errorf("catalogue locale = %q, want %q", cat.Locale, locale)
		}
		if len(cat.BasicQuestions) == 0 || len(cat.PresetQuestions) == 0 {
			t.Errorf("%s: catalogue has no questions", locale)
		}
		if len(cat.DefaultOptions) == 0 {
			t.Errorf("%s: catalogue has no default options", locale)
		}
	}
}

func TestLocalesShareStructure(t *testing.T) {
	// Question ids must match across locales: the engine addresses
	// questions by id regardless of language.
	catalogs, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	zh, en := catalogs["zh"], catalogs["en"]

	if len(zh.BasicQuestions) != len(en.BasicQuestions) {
		t.Fatalf("basic question counts differ: zh=%d en=%d",
			len(zh.BasicQuestions), len(en.BasicQuestions))
	}
	for i := range zh.BasicQuestions {
		if zh.BasicQuestions[i].ID != en.BasicQuestions[i].ID {
			t.Errorf("basic[%d]: zh id %q != en id %q",
				i, zh.BasicQuestions[i].ID, en.BasicQuestions[i].ID)
		}
	}
	if len(zh.PresetQuestions) != len(en.PresetQuestions) {
		t.Fatalf("preset question counts differ")
	}
	for i := range zh.PresetQuestions {
		if zh.PresetQuestions[i].ID != en.PresetQuestions[i].ID {
			t.Errorf("preset[%d]: zh id %q != en id %q",
				i, zh.PresetQuestions[i].ID, en.PresetQuestions[i].ID)
		}
	}
}

func TestLoadUnknownLocale(t *testing.T) {
	if _, err := Load("fr"); err == nil {
		t.Error("expected error for unsupported locale")
	}
}

func TestPresetOptionsTemplateFallback(t *testing.T) {
	cat, err := Load("en")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	fallback := cat.PresetOptionsTemplate("does-not-exist")
	if fallback != cat.Prompts.PresetQuestionOptions["default"] {
		t.Error("unknown id should resolve to the default template")
	}
	if !strings.Contains(fallback, "{question}") {
		t.Error("default template must carry the {question} placeholder")
	}
}

func TestValidateRejectsMissingPlaceholders(t *testing.T) {
	cat, err := Load("en")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	broken := *cat
	broken.Prompts.FinalNaming = "generate names please" // no {answersContext}
	if err := broken.Validate(); err == nil {
		t.Error("expected validation failure for missing placeholder")
	}

	broken = *cat
	broken.Prompts.FollowUpGuide = ""
	if err := broken.Validate(); err == nil {
		t.Error("expected validation failure for empty template")
	}
}

func TestValidateRejectsSelectWithoutOptions(t *testing.T) {
	cat, err := Load("en")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	broken := *cat
	broken.BasicQuestions = append([]BasicQuestion(nil), cat.BasicQuestions...)
	broken.BasicQuestions[0] = BasicQuestion{
		ID:       "mood",
		Question: "How do you feel?",
		Kind:     KindSelect,
	}
	if err := broken.Validate(); err == nil {
		t.Error("expected validation failure for select question without options")
	}
}
