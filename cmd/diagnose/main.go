// Command diagnose runs the symptom matcher from the command line against a
// local catalogue, without Kafka, Redis or PostgreSQL.
//
// Usage:
//
//	diagnose match --catalogue configs/catalogue.yaml "lá vàng và khô"
//	diagnose keywords "lá bị vàng úa, có đốm nâu"
//	diagnose seed --db catalogue.db --file configs/catalogue.yaml
//	diagnose treatment --catalogue catalogue.db "đạo ôn"
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/logger"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "diagnose: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	catalogueFlag := &cli.StringFlag{
		Name:     "catalogue",
		Aliases:  []string{"c"},
		Usage:    "YAML seed file or SQLite database holding the diseases",
		Required: true,
	}
	jsonFlag := &cli.BoolFlag{
		Name:    "json",
		Aliases: []string{"j"},
		Usage:   "Output as JSON",
	}

	return &cli.App{
		Name:      "diagnose",
		Usage:     "Match plant symptom descriptions against a disease catalogue",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Config file path; matcher settings are read from it",
			},
			&cli.StringFlag{
				Name:  "vocabulary",
				Usage: "Vocabulary file overriding the built-in synonyms, stop words and severity terms",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "warn",
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetupWriter(c.App.ErrWriter, c.String("log-level"), "text")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "match",
				Aliases:   []string{"m"},
				Usage:     "Find the disease that best fits a symptom description",
				ArgsUsage: "<description>",
				Flags: []cli.Flag{
					catalogueFlag,
					jsonFlag,
					&cli.BoolFlag{
						Name:  "no-severity",
						Usage: "Disable severity weighting",
					},
				},
				Action: matchCommand,
			},
			{
				Name:      "keywords",
				Aliases:   []string{"k"},
				Usage:     "Show the keywords extracted from a description",
				ArgsUsage: "<description>",
				Flags:     []cli.Flag{jsonFlag},
				Action:    keywordsCommand,
			},
			{
				Name:      "treatment",
				Aliases:   []string{"t"},
				Usage:     "Look up the treatment for a disease by name",
				ArgsUsage: "<disease name>",
				Flags:     []cli.Flag{catalogueFlag},
				Action:    treatmentCommand,
			},
			{
				Name:  "seed",
				Usage: "Load a YAML catalogue into a SQLite database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Usage:    "SQLite database path, created if missing",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "YAML seed file",
						Required: true,
					},
				},
				Action: seedCommand,
			},
		},
	}
}

// loadConfig reads --config, falling back to defaults and PD_* overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v := c.String("vocabulary"); v != "" {
		cfg.Matcher.VocabularyPath = v
	}
	return cfg, nil
}
