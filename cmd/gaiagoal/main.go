// CLAUDE:SUMMARY Goal runner binary: loads goals from flags or a YAML/JSON file and drives them against a running host.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/gaia/goalloop"
	"github.com/hazyhaar/gaia/vlm"
)

func main() {
	var (
		hostURL     = flag.String("host", env("GAIA_HOST", "http://localhost:8090"), "base URL of the gaia host")
		goalFile    = flag.String("goal-file", "", "YAML or JSON file with one goal or a goals list")
		goalText    = flag.String("goal", "", "inline goal description")
		startURL    = flag.String("url", "", "start URL for the inline goal")
		maxSteps    = flag.Int("max-steps", 0, "step budget (default 25)")
		exploratory = flag.Bool("exploratory", false, "coverage mode: exercise untested elements")
		sessionID   = flag.String("session", "goal", "host session id")
		apiKey      = flag.String("api-key", "", "Gemini API key (falls back to GEMINI_API_KEY / GOOGLE_API_KEY)")
		apiKeyFile  = flag.String("api-key-file", "", "file holding the Gemini API key")
		model       = flag.String("model", "", "vision model (default "+vlm.DefaultModel+")")
		stepDelay   = flag.Duration("step-delay", 500*time.Millisecond, "pause between steps")
		outPath     = flag.String("out", "", "write the JSON report here instead of stdout")
		logLevel    = flag.String("log-level", "info", "debug, info, warn, or error")
	)
	flag.Parse()

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	goals, err := loadGoals(*goalFile, *goalText, *startURL, *maxSteps, *exploratory)
	if err != nil {
		slog.Error("goals", "error", err)
		os.Exit(1)
	}
	if len(goals) == 0 {
		slog.Error("no goal: pass -goal with -url, or -goal-file")
		os.Exit(1)
	}

	key, err := vlm.ResolveAPIKey(*apiKey, *apiKeyFile)
	if err != nil {
		slog.Error("api key", "error", err)
		os.Exit(1)
	}
	gem, err := vlm.NewGemini(ctx, vlm.GeminiConfig{APIKey: key, Model: *model},
		vlm.WithLogger(logger))
	if err != nil {
		slog.Error("gemini", "error", err)
		os.Exit(1)
	}

	runner := &goalloop.Runner{
		Host:      goalloop.NewClient(*hostURL),
		Decider:   &vlm.Decider{Analyzer: gem, Logger: logger},
		SessionID: *sessionID,
		StepDelay: *stepDelay,
		Logger:    logger,
	}

	var results []*goalloop.RunResult
	achievedAll := true
	for _, g := range goals {
		slog.Info("goal starting", "goal", g.ID, "url", g.StartURL, "exploratory", g.Exploratory)
		res, err := runner.Run(ctx, g)
		if err != nil {
			slog.Error("goal run", "goal", g.ID, "error", err)
			os.Exit(1)
		}
		slog.Info("goal finished", "goal", g.ID, "achieved", res.Achieved,
			"steps", len(res.Steps), "stop", res.StopReason)
		results = append(results, res)
		if !res.Achieved && !g.Exploratory {
			achievedAll = false
		}
	}

	if err := writeReport(*outPath, results); err != nil {
		slog.Error("report", "error", err)
		os.Exit(1)
	}
	if !achievedAll {
		os.Exit(2)
	}
}

// fileGoal mirrors goalloop.Goal with yaml tags; json files decode through
// the Goal json tags directly.
type fileGoal struct {
	ID              string         `yaml:"id"`
	Description     string         `yaml:"description"`
	SuccessCriteria []string       `yaml:"success_criteria"`
	FailureCriteria []string       `yaml:"failure_criteria"`
	Keywords        []string       `yaml:"keywords"`
	TestData        map[string]any `yaml:"test_data"`
	StartURL        string         `yaml:"start_url"`
	MaxSteps        int            `yaml:"max_steps"`
	Exploratory     bool           `yaml:"exploratory"`
}

func (f fileGoal) toGoal() (goalloop.Goal, error) {
	g := goalloop.Goal{
		ID:              f.ID,
		Description:     f.Description,
		SuccessCriteria: f.SuccessCriteria,
		FailureCriteria: f.FailureCriteria,
		Keywords:        f.Keywords,
		StartURL:        f.StartURL,
		MaxSteps:        f.MaxSteps,
		Exploratory:     f.Exploratory,
	}
	if len(f.TestData) > 0 {
		raw, err := json.Marshal(f.TestData)
		if err != nil {
			return g, fmt.Errorf("goal %s: test_data: %w", f.ID, err)
		}
		g.TestData = raw
	}
	return g, nil
}

func loadGoals(path, inline, startURL string, maxSteps int, exploratory bool) ([]goalloop.Goal, error) {
	if inline != "" {
		if startURL == "" {
			return nil, fmt.Errorf("inline goal needs -url")
		}
		return []goalloop.Goal{{
			ID:          "inline",
			Description: inline,
			StartURL:    startURL,
			MaxSteps:    maxSteps,
			Exploratory: exploratory,
		}}, nil
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext == ".json" {
		var many struct {
			Goals []goalloop.Goal `json:"goals"`
		}
		if err := json.Unmarshal(data, &many); err == nil && len(many.Goals) > 0 {
			return many.Goals, nil
		}
		var one goalloop.Goal
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return []goalloop.Goal{one}, nil
	}

	var many struct {
		Goals []fileGoal `yaml:"goals"`
	}
	if err := yaml.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	fgs := many.Goals
	if len(fgs) == 0 {
		var one fileGoal
		if err := yaml.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if one.Description == "" {
			return nil, fmt.Errorf("%s: no goals found", path)
		}
		fgs = []fileGoal{one}
	}

	goals := make([]goalloop.Goal, 0, len(fgs))
	for i, fg := range fgs {
		g, err := fg.toGoal()
		if err != nil {
			return nil, err
		}
		if g.ID == "" {
			g.ID = fmt.Sprintf("goal-%d", i+1)
		}
		goals = append(goals, g)
	}
	return goals, nil
}

func writeReport(path string, results []*goalloop.RunResult) error {
	out, err := json.MarshalIndent(map[string]any{"results": results}, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if path == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
