package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/catalogue"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/detection"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/scoring"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/config"
)

func matchCommand(c *cli.Context) error {
	description := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(description) == "" {
		return errors.New("usage: diagnose match --catalogue <file> <description>")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("no-severity") {
		cfg.Matcher.EnableSeverityWeighting = false
	}
	engine, err := buildMatcher(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(c.Context, c.String("catalogue"))
	if err != nil {
		return err
	}
	defer store.Close()

	svc := detection.NewService(detection.Deps{Catalogue: store, Matcher: engine}, detection.Config{
		MaxDescriptionLength: cfg.Detection.MaxDescriptionLength,
		FetchTimeout:         cfg.Catalogue.FetchTimeout,
	})
	result, err := svc.DetectSymptoms(c.Context, description)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, result)
	}
	printResult(c.App.Writer, result)
	return nil
}

func keywordsCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	vocab, err := vocabulary.Load(cfg.Matcher.VocabularyPath)
	if err != nil {
		return err
	}
	kw := keywords.NewExtractor(vocab, cfg.Matcher.MinKeywordLength).Extract(text)
	if c.Bool("json") {
		return writeJSON(c.App.Writer, kw)
	}
	for _, k := range kw {
		fmt.Fprintln(c.App.Writer, k)
	}
	return nil
}

func treatmentCommand(c *cli.Context) error {
	name := strings.Join(c.Args().Slice(), " ")
	store, err := openStore(c.Context, c.String("catalogue"))
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Lookup(c.Context, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s\n", e.Name)
	if e.Treatment == "" {
		fmt.Fprintln(c.App.Writer, "  no treatment recorded")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "  %s\n", e.Treatment)
	return nil
}

func seedCommand(c *cli.Context) error {
	entries, err := catalogue.LoadSeed(c.String("file"))
	if err != nil {
		return err
	}
	db, err := catalogue.OpenSQLite(c.Context, c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := catalogue.Seed(c.Context, db, entries); err != nil {
		return fmt.Errorf("seeding %s: %w", c.String("db"), err)
	}
	fmt.Fprintf(c.App.Writer, "seeded %d diseases into %s\n", len(entries), c.String("db"))
	return nil
}

func buildMatcher(cfg *config.Config) (*matcher.Matcher, error) {
	vocab, err := vocabulary.Load(cfg.Matcher.VocabularyPath)
	if err != nil {
		return nil, err
	}
	return matcher.New(
		keywords.NewExtractor(vocab, cfg.Matcher.MinKeywordLength),
		scoring.New(vocab, scoring.Config{EnableSeverityWeighting: cfg.Matcher.EnableSeverityWeighting}),
		matcher.Config{
			ConfidenceThreshold:   cfg.Matcher.ConfidenceThreshold,
			AlternativeScoreFloor: cfg.Matcher.AlternativeScoreFloor,
			MaxAlternatives:       cfg.Matcher.MaxAlternatives,
		},
	), nil
}

// openStore loads YAML files into memory and opens anything else as SQLite.
func openStore(ctx context.Context, path string) (catalogue.Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err := catalogue.LoadSeed(path)
		if err != nil {
			return nil, err
		}
		return catalogue.NewMemory(entries...)
	default:
		return catalogue.OpenSQLite(ctx, path)
	}
}

func printResult(w io.Writer, r *detection.Result) {
	if r.Confident() {
		fmt.Fprintf(w, "disease:      %s\n", r.DiseaseName)
		fmt.Fprintf(w, "confidence:   %.1f%%\n", r.Confidence)
		if r.Severity != "" {
			fmt.Fprintf(w, "severity:     %s\n", r.Severity)
		}
		if r.Treatment != "" {
			fmt.Fprintf(w, "treatment:    %s\n", r.Treatment)
		}
	} else {
		fmt.Fprintf(w, "inconclusive: %s\n", r.Reason)
		if r.DiseaseName != "" {
			fmt.Fprintf(w, "closest:      %s (%.1f%%)\n", r.DiseaseName, r.Confidence)
		}
		fmt.Fprintf(w, "suggestion:   %s\n", r.Suggestion)
	}
	if len(r.Alternatives) > 0 {
		fmt.Fprintf(w, "alternatives: %s\n", strings.Join(r.Alternatives, ", "))
	}
	if len(r.Keywords) > 0 {
		fmt.Fprintf(w, "keywords:     %s\n", strings.Join(r.Keywords, ", "))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
