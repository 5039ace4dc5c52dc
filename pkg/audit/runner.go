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

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
	"golang.org/x/sync/errgroup"
)

// Diagnostic is a runner-level note: a skipped audit, a failed lookup,
// or an audit that panicked. Diagnostics never abort the run.
type Diagnostic struct {
	AuditID string `json:"auditId,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Result aggregates one run's output
type Result struct {
	Findings    []finding.Finding
	Suppressed  []finding.Finding
	Diagnostics []Diagnostic
	Cancelled   bool
}

// Runner applies a selected set of audits to each input
type Runner struct {
	Audits    []Audit
	Resources *Resources

	// Include and Exclude are explicit audit-id selections; Include
	// empty means all
	Include []string
	Exclude []string

	// Parallelism bounds concurrent per-input execution; zero means
	// one worker per CPU
	Parallelism int

	Log *slog.Logger
}

// selected reports whether an audit runs under the current mode
func (r *Runner) selected(a *Audit) bool {
	for _, id := range r.Exclude {
		if id == a.ID {
			return false
		}
	}
	if len(r.Include) > 0 {
		for _, id := range r.Include {
			if id == a.ID {
				return true
			}
		}
		return false
	}
	if !a.DefaultEnabled && !r.Resources.Pedantic {
		return false
	}
	return true
}

// Run executes every selected audit over every input. Audits are
// independent and see an immutable model, so per-input execution can
// fan out; findings are canonically sorted afterwards regardless.
func (r *Runner) Run(ctx context.Context, inputs []*workflow.Input) *Result {
	result := &Result{}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	workers := r.Parallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, in := range inputs {
		group.Go(func() error {
			findings, suppressed, diags := r.runInput(groupCtx, in, log)
			mu.Lock()
			result.Findings = append(result.Findings, findings...)
			result.Suppressed = append(result.Suppressed, suppressed...)
			result.Diagnostics = append(result.Diagnostics, diags...)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		result.Cancelled = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	}

	finding.Sort(result.Findings)
	return result
}

func (r *Runner) runInput(ctx context.Context, in *workflow.Input, log *slog.Logger) (kept, suppressed []finding.Finding, diags []Diagnostic) {
	var findings []finding.Finding

	for i := range r.Audits {
		a := &r.Audits[i]
		if !r.selected(a) || !a.AppliesTo(in.Kind) {
			continue
		}
		if ctx.Err() != nil {
			// Cancelled: refuse to start further audits; what has been
			// produced so far is still emitted.
			break
		}
		if a.Online && !r.Resources.Online() {
			diags = append(diags, Diagnostic{
				AuditID: a.ID,
				Path:    in.Doc.Path,
				Message: fmt.Sprintf("audit %s skipped: requires online access", a.ID),
			})
			continue
		}

		log.Debug("running audit", "audit", a.ID, "input", in.Doc.Path)
		findings = append(findings, r.runAudit(ctx, a, in, &diags)...)
	}

	kept, suppressedHere := applySuppressions(in.Doc, findings)
	return kept, suppressedHere, diags
}

// runAudit isolates one audit invocation: a panic inside an audit is
// converted to a diagnostic and the run continues
func (r *Runner) runAudit(ctx context.Context, a *Audit, in *workflow.Input, diags *[]Diagnostic) (findings []finding.Finding) {
	defer func() {
		if recovered := recover(); recovered != nil {
			*diags = append(*diags, Diagnostic{
				AuditID: a.ID,
				Path:    in.Doc.Path,
				Message: fmt.Sprintf("audit %s failed on %s: %v", a.ID, in.Doc.Path, recovered),
			})
			findings = nil
		}
	}()
	return a.Check(ctx, in, r.Resources)
}
