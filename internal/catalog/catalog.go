// Package catalog loads the per-locale question and prompt-template
// catalogues. Templates use named {placeholder} slots; the schema is
// validated at load time so a broken catalogue fails at startup instead of
// mid-conversation.
package catalog

import (
	"embed"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Question kinds for basic questions.
const (
	KindText   = "text"
	KindSelect = "select"
)

// BasicQuestion is a fixed first-phase question.
type BasicQuestion struct {
	ID          string   `yaml:"id"`
	Question    string   `yaml:"question"`
	Kind        string   `yaml:"kind"`
	Options     []string `yaml:"options"`
	Placeholder string   `yaml:"placeholder"`
	Required    bool     `yaml:"required"`
}

// PresetQuestion is a statically defined advanced question whose options are
// generated by the model after startup.
type PresetQuestion struct {
	ID       string `yaml:"id"`
	Question string `yaml:"question"`
}

// Prompts holds the template strings driving every model call.
type Prompts struct {
	// PresetQuestionOptions maps a preset question id to its
	// option-generation template; the "default" entry is the fallback for
	// ids without a dedicated template. Placeholder: {question}.
	PresetQuestionOptions map[string]string `yaml:"presetQuestionOptions"`

	// AIAdvancedQuestion generates one new personalized advanced question.
	// Placeholders: {answersContext}, {questionIndex}.
	AIAdvancedQuestion string `yaml:"aiAdvancedQuestion"`

	// FollowUpGuide is the per-level probing guidance substituted into
	// FollowUpQuestion. Placeholder: {followUpLevel}.
	FollowUpGuide string `yaml:"followUpGuide"`

	// FollowUpQuestion generates the next follow-up in a chain.
	// Placeholders: {originalQuestion}, {answer}, {answersContext},
	// {levelPrompt}.
	FollowUpQuestion string `yaml:"followUpQuestion"`

	// FinalNaming generates the terminal NamingResult JSON.
	// Placeholder: {answersContext}.
	FinalNaming string `yaml:"finalNaming"`

	// FamilyCrest is the crest design prompt. Placeholders: {name},
	// {meaning}, {culturalBackground}, {personalityMatch}.
	FamilyCrest string `yaml:"familyCrest"`
}

// Catalog is one locale's complete catalogue.
type Catalog struct {
	Locale          string           `yaml:"-"`
	BasicQuestions  []BasicQuestion  `yaml:"basicQuestions"`
	PresetQuestions []PresetQuestion `yaml:"presetQuestions"`

	// DefaultOptions is the fixed option list substituted when
	// option-generation output cannot be parsed. Options are lower stakes
	// than generated names, so this path degrades instead of failing.
	DefaultOptions []string `yaml:"defaultOptions"`

	Prompts Prompts `yaml:"prompts"`
}

// SupportedLocales lists the bundled catalogues, first entry is the default.
func SupportedLocales() []string {
	return []string{"zh", "en"}
}

// Load reads and validates the catalogue for the given locale.
func Load(locale string) (*Catalog, error) {
	raw, err := localeFS.ReadFile("locales/" + locale + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("catalog: unknown locale %q: %w", locale, err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", locale, err)
	}
	cat.Locale = locale

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: invalid %s catalogue: %w", locale, err)
	}
	return &cat, nil
}

// LoadAll loads every supported locale, keyed by locale code.
func LoadAll() (map[string]*Catalog, error) {
	catalogs := make(map[string]*Catalog, len(SupportedLocales()))
	for _, locale := range SupportedLocales() {
		cat, err := Load(locale)
		if err != nil {
			return nil, err
		}
		catalogs[locale] = cat
	}
	return catalogs, nil
}

// Validate checks the catalogue schema: required sections present, every
// template non-empty and carrying its required placeholders.
func (c *Catalog) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BasicQuestions, validation.Required),
		validation.Field(&c.PresetQuestions, validation.Required),
		validation.Field(&c.DefaultOptions, validation.Required),
	)
	if err != nil {
		return err
	}

	for i, q := range c.BasicQuestions {
		if err := validation.ValidateStruct(&q,
			validation.Field(&q.ID, validation.Required),
			validation.Field(&q.Question, validation.Required),
			validation.Field(&q.Kind, validation.Required, validation.In(KindText, KindSelect)),
		); err != nil {
			return fmt.Errorf("basicQuestions[%d]: %w", i, err)
		}
		if q.Kind == KindSelect && len(q.Options) == 0 {
			return fmt.Errorf("basicQuestions[%d]: select question %q has no options", i, q.ID)
		}
	}
	for i, q := range c.PresetQuestions {
		if err := validation.ValidateStruct(&q,
			validation.Field(&q.ID, validation.Required),
			validation.Field(&q.Question, validation.Required),
		); err != nil {
			return fmt.Errorf("presetQuestions[%d]: %w", i, err)
		}
	}

	return c.Prompts.validate()
}

func (p *Prompts) validate() error {
	if _, ok := p.PresetQuestionOptions["default"]; !ok {
		return fmt.Errorf("prompts.presetQuestionOptions: missing \"default\" template")
	}
	for id, tmpl := range p.PresetQuestionOptions {
		if err := requirePlaceholders("presetQuestionOptions."+id, tmpl, "{question}"); err != nil {
			return err
		}
	}

	checks := []struct {
		name         string
		tmpl         string
		placeholders []string
	}{
		{"aiAdvancedQuestion", p.AIAdvancedQuestion, []string{"{answersContext}", "{questionIndex}"}},
		{"followUpGuide", p.FollowUpGuide, []string{"{followUpLevel}"}},
		{"followUpQuestion", p.FollowUpQuestion, []string{"{originalQuestion}", "{answer}", "{answersContext}", "{levelPrompt}"}},
		{"finalNaming", p.FinalNaming, []string{"{answersContext}"}},
		{"familyCrest", p.FamilyCrest, []string{"{name}", "{meaning}", "{culturalBackground}", "{personalityMatch}"}},
	}
	for _, check := range checks {
		if err := requirePlaceholders(check.name, check.tmpl, check.placeholders...); err != nil {
			return err
		}
	}
	return nil
}

func requirePlaceholders(name, tmpl string, placeholders ...string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("prompts.%s: template is empty", name)
	}
	for _, ph := range placeholders {
		if !strings.Contains(tmpl, ph) {
			return fmt.Errorf("prompts.%s: template is missing placeholder %s", name, ph)
		}
	}
	return nil
}

// PresetOptionsTemplate returns the option-generation template for the given
// preset question id, falling back to the "default" entry.
func (c *Catalog) PresetOptionsTemplate(questionID string) string {
	if tmpl, ok := c.Prompts.PresetQuestionOptions[questionID]; ok {
		return tmpl
	}
	return c.Prompts.PresetQuestionOptions["default"]
}
