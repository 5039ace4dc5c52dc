/*
Copyright 2025 Ghast Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghast-sh/ghast/pkg/audit"
	"github.com/ghast-sh/ghast/pkg/config"
	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/githubapi"
	"github.com/ghast-sh/ghast/pkg/policy"
	"github.com/ghast-sh/ghast/pkg/report"
	"github.com/ghast-sh/ghast/pkg/workflow"
	"github.com/phsym/console-slog"
	"github.com/urfave/cli/v2"
)

var version = "0.3.0"

func main() {
	app := &cli.App{
		Name:      "ghast",
		Version:   version,
		Usage:     "static security analyzer for GitHub Actions workflows",
		ArgsUsage: "[paths...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Disable all online audits and lookups",
			},
			&cli.BoolFlag{
				Name:  "pedantic",
				Usage: "Enable stricter audits and default-disabled checks",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (plain, sarif, json)",
				Value: "plain",
			},
			&cli.StringFlag{
				Name:  "min-severity",
				Usage: "Minimum severity to report (informational, low, medium, high)",
				Value: "informational",
			},
			&cli.StringFlag{
				Name:  "confidence",
				Usage: "Minimum confidence to report (low, medium, high)",
				Value: "low",
			},
			&cli.StringFlag{
				Name:    "gh-token",
				Usage:   "Platform API token for online audits",
				EnvVars: []string{"GH_TOKEN"},
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Suppress progress output on stderr",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
			},
			&cli.StringSliceFlag{
				Name:  "enable",
				Usage: "Run only these audit IDs",
			},
			&cli.StringSliceFlag{
				Name:  "disable",
				Usage: "Skip these audit IDs",
			},
			&cli.StringFlag{
				Name:    "policy",
				Aliases: []string{"p"},
				Usage:   "Custom Rego policy file or directory",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Treat runner diagnostics as errors",
			},
			&cli.DurationFlag{
				Name:  "online-budget",
				Usage: "Total wall-clock budget for online lookups",
				Value: 2 * time.Minute,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		if code, ok := err.(cli.ExitCoder); ok {
			os.Exit(code.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(report.ExitError)
	}
}

func run(c *cli.Context) error {
	startTime := time.Now()

	level := slog.LevelInfo
	if c.Bool("no-progress") {
		level = slog.LevelError
	}
	log := slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{Level: level}))

	minSeverity, ok := finding.ParseSeverity(c.String("min-severity"))
	if !ok {
		return cli.Exit(fmt.Sprintf("invalid --min-severity %q", c.String("min-severity")), report.ExitError)
	}
	minConfidence, ok := finding.ParseConfidence(c.String("confidence"))
	if !ok {
		return cli.Exit(fmt.Sprintf("invalid --confidence %q", c.String("confidence")), report.ExitError)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), report.ExitError)
	}

	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var files []string
	for _, path := range paths {
		discovered, err := workflow.Discover(path)
		if err != nil {
			return cli.Exit(err.Error(), report.ExitError)
		}
		files = append(files, discovered...)
	}

	var inputs []*workflow.Input
	documents := map[string]*workflow.Document{}
	var loadDiags []audit.Diagnostic
	for _, file := range files {
		in, err := workflow.LoadInput(file)
		if err != nil {
			// Broken inputs are skipped; the run continues.
			log.Warn("skipping input", "path", file, "error", err)
			loadDiags = append(loadDiags, audit.Diagnostic{Path: file, Message: err.Error()})
			continue
		}
		inputs = append(inputs, in)
	}

	// Local composite actions referenced by the inputs are analyzed too.
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			inputs = workflow.ExpandLocalActions(path, inputs)
		}
	}
	for _, in := range inputs {
		documents[in.Doc.Path] = in.Doc
	}
	log.Info("collected inputs", "count", len(inputs))

	resources := &audit.Resources{
		Pedantic: c.Bool("pedantic"),
		Log:      log,
	}
	if !c.Bool("offline") {
		resources.Client = githubapi.NewClient(githubapi.Options{
			Token:  c.String("gh-token"),
			Budget: c.Duration("online-budget"),
		})
		resources.Advisories = githubapi.NewAdvisoryClient()
	}

	audits := audit.Registry()

	var include []string
	for _, id := range c.StringSlice("enable") {
		include = append(include, id)
	}
	exclude := c.StringSlice("disable")
	for _, a := range audits {
		if !cfg.RuleEnabled(a.ID) {
			exclude = append(exclude, a.ID)
		}
	}

	runner := &audit.Runner{
		Audits:    audits,
		Resources: resources,
		Include:   include,
		Exclude:   exclude,
		Log:       log,
	}

	result := runner.Run(ctx, inputs)
	result.Diagnostics = append(loadDiags, result.Diagnostics...)

	if policyPath := c.String("policy"); policyPath != "" {
		policyFiles, err := policy.LoadPolicyFiles(policyPath)
		if err != nil {
			return cli.Exit(err.Error(), report.ExitError)
		}
		engine := policy.NewEngine(policyFiles)
		for _, in := range inputs {
			policyFindings, err := engine.Evaluate(ctx, in)
			if err != nil {
				log.Warn("policy evaluation failed", "path", in.Doc.Path, "error", err)
				result.Diagnostics = append(result.Diagnostics, audit.Diagnostic{
					Path:    in.Doc.Path,
					Message: err.Error(),
				})
				continue
			}
			result.Findings = append(result.Findings, policyFindings...)
		}
		finding.Sort(result.Findings)
	}

	filtered := cfg.Apply(result.Findings)
	filtered = filterThresholds(filtered, minSeverity, minConfidence)

	reportRun := &report.Run{
		Findings:    filtered,
		Suppressed:  result.Suppressed,
		Diagnostics: result.Diagnostics,
		Documents:   documents,
		Audits:      audits,
		StartTime:   startTime,
		Duration:    time.Since(startTime),
		Cancelled:   result.Cancelled,
	}

	generator := &report.Generator{
		Run:    reportRun,
		Format: c.String("format"),
		Out:    os.Stdout,
	}
	if err := generator.Generate(); err != nil {
		return cli.Exit(fmt.Sprintf("failed to write report: %v", err), report.ExitError)
	}

	if code := reportRun.ExitCode(minSeverity, c.Bool("strict")); code != report.ExitClean {
		return cli.Exit("", code)
	}
	return nil
}

// filterThresholds drops findings below the configured severity and
// confidence floors
func filterThresholds(findings []finding.Finding, minSeverity finding.Severity, minConfidence finding.Confidence) []finding.Finding {
	var out []finding.Finding
	for _, f := range findings {
		if f.Severity.AtLeast(minSeverity) && f.Confidence.AtLeast(minConfidence) {
			out = append(out, f)
		}
	}
	return out
}
