package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/Yuikij/japanesename/internal/catalog"
	"github.com/Yuikij/japanesename/internal/chatclient"
	"github.com/Yuikij/japanesename/internal/config"
	"github.com/Yuikij/japanesename/internal/gemini"
	"github.com/Yuikij/japanesename/internal/naming"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

type CLI struct {
	ctx          context.Context
	orchestrator *naming.Orchestrator
	scanner      *bufio.Scanner
	gatewayURL   string
	httpClient   *http.Client
	logger       *slog.Logger

	crestMu sync.Mutex
	crests  map[int]string // name index -> saved crest file
}

// setupLogger creates a logger that writes to both console and file
func setupLogger() (*slog.Logger, string, error) {
	logsDir := "logs"
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFilename := filepath.Join(logsDir, fmt.Sprintf("namecli_%s.log", timestamp))

	logFile, err := os.Create(logFilename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create log file: %w", err)
	}

	// Console: WARN level so prompts stay readable; file: DEBUG level
	consoleHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	fileHandler := slog.NewTextHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	logger := slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler, fileHandler}})
	return logger, logFilename, nil
}

// multiHandler writes to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

func main() {
	_ = godotenv.Load()

	logger, logFile, err := setupLogger()
	if err != nil {
		fmt.Printf("Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("session started", "log_file", logFile)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("%s❌ Invalid configuration: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}

	keys := gemini.NewKeyPool(cfg.GeminiAPIKeys)
	if keys.Size() == 0 {
		fmt.Printf("%s❌ Error: GEMINI_API_KEY must be set in environment%s\n", colorRed, colorReset)
		os.Exit(1)
	}

	locale := os.Getenv("NAMECLI_LOCALE")
	if locale == "" {
		locale = config.DefaultLocale
	}
	cat, err := catalog.Load(locale)
	if err != nil {
		fmt.Printf("%s❌ Failed to load catalogue for locale %q: %v%s\n", colorRed, locale, err, colorReset)
		os.Exit(1)
	}

	chat := chatclient.New(cfg.ChatAPIEndpoint, keys, logger)
	orchestrator := naming.NewOrchestrator(cat, chat, naming.Quotas{
		AIQuestionQuota:  cfg.AIQuestionQuota,
		MaxFollowUpDepth: cfg.MaxFollowUpDepth,
		LenientAnchor:    cfg.LenientAnchor,
	}, logger)

	gatewayURL := os.Getenv("NAMECLI_GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "http://localhost:" + cfg.Port
	}

	cli := &CLI{
		ctx:          context.Background(),
		orchestrator: orchestrator,
		scanner:      bufio.NewScanner(os.Stdin),
		gatewayURL:   strings.TrimRight(gatewayURL, "/"),
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		logger:       logger,
		crests:       make(map[int]string),
	}
	cli.run()
}

func (cli *CLI) run() {
	fmt.Printf("\n%s╔══════════════════════════════════════╗%s\n", colorCyan, colorReset)
	fmt.Printf("%s║    Japanese Name Generator CLI       ║%s\n", colorCyan, colorReset)
	fmt.Printf("%s╚══════════════════════════════════════╝%s\n", colorCyan, colorReset)
	fmt.Printf("%sCommands: 'skip' skips a question, 'next' skips a follow-up topic,%s\n", colorBlue, colorReset)
	fmt.Printf("%s'generate' jumps straight to name generation.%s\n\n", colorBlue, colorReset)

	fmt.Printf("%s⏳ Preparing questions...%s\n", colorBlue, colorReset)
	if err := cli.orchestrator.Start(cli.ctx); err != nil {
		cli.logger.Error("start failed", "error", err)
		fmt.Printf("%s❌ Failed to start: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}

	for {
		state := cli.orchestrator.State()
		switch state.Phase {
		case naming.PhaseBasic:
			cli.askBasic()
		case naming.PhaseAdvancedPreset, naming.PhaseAdvancedAI:
			cli.askAdvanced()
		case naming.PhaseFollowUp:
			cli.askFollowUp()
		case naming.PhaseComplete:
			cli.showResult()
			return
		default:
			// generating is transient; operations are synchronous here
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (cli *CLI) askBasic() {
	question, ok := cli.orchestrator.CurrentBasicQuestion()
	if !ok {
		return
	}

	fmt.Println("\n" + strings.Repeat("─", 40))
	fmt.Printf("%s%s%s\n", colorCyan, question.Question, colorReset)
	printOptions(question.Options)
	if question.Placeholder != "" {
		fmt.Printf("%s(%s)%s\n", colorBlue, question.Placeholder, colorReset)
	}
	fmt.Print("> ")

	answer := pickOption(cli.readLine(), question.Options)
	if err := cli.orchestrator.AnswerBasic(answer); err != nil {
		fmt.Printf("%s⚠ %v%s\n", colorYellow, err, colorReset)
	}
}

func (cli *CLI) askAdvanced() {
	question, ok := cli.orchestrator.CurrentAdvancedQuestion()
	if !ok {
		return
	}

	fmt.Println("\n" + strings.Repeat("─", 40))
	fmt.Printf("%s%s%s\n", colorCyan, question.Question, colorReset)
	printOptions(question.Options)
	fmt.Print("> ")

	input := cli.readLine()
	switch strings.ToLower(input) {
	case "generate":
		cli.generateNow()
		return
	case "skip":
		cli.dispatch(func() error { return cli.orchestrator.AnswerAdvanced(cli.ctx, "", true) })
	default:
		answer := pickOption(input, question.Options)
		cli.dispatch(func() error { return cli.orchestrator.AnswerAdvanced(cli.ctx, answer, false) })
	}
}

func (cli *CLI) askFollowUp() {
	question, ok := cli.orchestrator.CurrentFollowUpQuestion()
	if !ok {
		return
	}

	fmt.Println("\n" + strings.Repeat("─", 40))
	fmt.Printf("%s↳ %s%s\n", colorCyan, question.Question, colorReset)
	printOptions(question.Options)
	fmt.Print("> ")

	input := cli.readLine()
	switch strings.ToLower(input) {
	case "generate":
		cli.generateNow()
		return
	case "next":
		cli.dispatch(func() error { return cli.orchestrator.SkipToNextTopic(cli.ctx) })
	case "skip":
		cli.dispatch(func() error { return cli.orchestrator.AnswerFollowUp(cli.ctx, "", true) })
	default:
		answer := pickOption(input, question.Options)
		cli.dispatch(func() error { return cli.orchestrator.AnswerFollowUp(cli.ctx, answer, false) })
	}
}

func (cli *CLI) generateNow() {
	fmt.Printf("\n%s⏳ Generating names...%s\n", colorBlue, colorReset)
	cli.dispatch(func() error { return cli.orchestrator.GenerateNow(cli.ctx) })
}

// dispatch runs an orchestrator operation and reports failures without
// terminating: mid-flow errors leave the machine retryable.
func (cli *CLI) dispatch(op func() error) {
	fmt.Printf("%s⏳ ...%s\n", colorBlue, colorReset)
	if err := op(); err != nil {
		cli.logger.Error("operation failed", "error", err)
		fmt.Printf("%s❌ Error: %v%s\n", colorRed, err, colorReset)
	}
}

func (cli *CLI) showResult() {
	result := cli.orchestrator.Result()
	if result == nil {
		state := cli.orchestrator.State()
		fmt.Printf("%s❌ Generation failed: %s%s\n", colorRed, state.Error, colorReset)
		return
	}

	fmt.Printf("\n%s╔══ Your Japanese Names ══╗%s\n", colorGreen, colorReset)
	for i, name := range result.Names {
		fmt.Printf("\n%s%d. %s (%s)%s\n", colorGreen, i+1, name.FullName, name.Reading, colorReset)
		fmt.Printf("   %s\n", name.Meaning)
		if name.Reason != "" {
			fmt.Printf("   %s\n", name.Reason)
		}
	}
	if result.Explanation != "" {
		fmt.Printf("\n%s%s%s\n", colorBlue, result.Explanation, colorReset)
	}

	for {
		fmt.Printf("\nEnter a name number for its family crest, or 'exit': ")
		input := cli.readLine()
		if strings.EqualFold(input, "exit") || input == "" {
			fmt.Printf("%s✓ Goodbye!%s\n", colorGreen, colorReset)
			return
		}
		index, err := strconv.Atoi(input)
		if err != nil || index < 1 || index > len(result.Names) {
			fmt.Printf("%s⚠ Invalid choice%s\n", colorYellow, colorReset)
			continue
		}
		cli.crestMu.Lock()
		if file, ok := cli.crests[index-1]; ok {
			fmt.Printf("%s✓ Already saved to %s, regenerating...%s\n", colorBlue, file, colorReset)
		}
		cli.crestMu.Unlock()
		// Crest requests run concurrently; the menu stays responsive and
		// the latest result per index wins.
		go cli.fetchCrest(index-1, result.Names[index-1])
	}
}

func (cli *CLI) fetchCrest(index int, name naming.GeneratedName) {
	body, err := json.Marshal(map[string]string{
		"name":               name.FullName,
		"meaning":            name.Meaning,
		"culturalBackground": name.CulturalBackground,
		"personalityMatch":   name.PersonalityMatch,
	})
	if err != nil {
		cli.logger.Error("marshaling crest request failed", "error", err)
		return
	}

	resp, err := cli.httpClient.Post(cli.gatewayURL+"/api/family-crest", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("\n%s❌ Crest request failed for %s: %v%s\n", colorRed, name.FullName, err, colorReset)
		return
	}
	defer resp.Body.Close()

	var crest struct {
		Success bool   `json:"success"`
		Image   string `json:"image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&crest); err != nil || !crest.Success {
		fmt.Printf("\n%s❌ Crest generation failed for %s%s\n", colorRed, name.FullName, colorReset)
		return
	}

	file, err := saveCrest(index, crest.Image)
	if err != nil {
		cli.logger.Error("saving crest failed", "error", err)
		fmt.Printf("\n%s❌ Could not save crest: %v%s\n", colorRed, err, colorReset)
		return
	}

	cli.crestMu.Lock()
	cli.crests[index] = file
	cli.crestMu.Unlock()
	fmt.Printf("\n%s✓ Crest for %s saved to %s%s\n> ", colorGreen, name.FullName, file, colorReset)
}

// saveCrest decodes a data URL and writes the image next to the logs.
func saveCrest(index int, dataURL string) (string, error) {
	meta, payload, found := strings.Cut(dataURL, ",")
	if !found {
		return "", fmt.Errorf("unexpected image format")
	}

	ext := ".png"
	if strings.Contains(meta, "svg") {
		ext = ".svg"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decoding crest image: %w", err)
	}

	file := fmt.Sprintf("crest_%d%s", index+1, ext)
	if err := os.WriteFile(file, data, 0644); err != nil {
		return "", fmt.Errorf("writing crest image: %w", err)
	}
	return file, nil
}

func (cli *CLI) readLine() string {
	if !cli.scanner.Scan() {
		return "exit"
	}
	return strings.TrimSpace(cli.scanner.Text())
}

func printOptions(options []string) {
	for i, option := range options {
		fmt.Printf("  %s%d.%s %s\n", colorYellow, i+1, colorReset, option)
	}
}

// pickOption resolves a numeric choice against the option list; anything
// else is taken as a free-form answer.
func pickOption(input string, options []string) string {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return input
}
