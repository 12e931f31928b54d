package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/ordpilot/internal/db"
	"github.com/lucasnoah/ordpilot/internal/generate"
	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/layout"
	"github.com/lucasnoah/ordpilot/internal/ord"
	"github.com/lucasnoah/ordpilot/internal/pipeline"
	"github.com/lucasnoah/ordpilot/internal/prompt"
	"github.com/lucasnoah/ordpilot/internal/stage"
	"github.com/lucasnoah/ordpilot/internal/worker"
)

// Retriever supplies example context for a generation prompt. Retrieval is
// optional: a nil Retriever or a failing lookup degrades to no examples and
// never blocks generation.
type Retriever interface {
	ContextFor(ctx context.Context, query string, k int) (string, error)
}

// Validator runs one candidate through the staged validation pipeline.
// worker.Host and worker.Inline both satisfy it. Stage failures come back
// inside the report; an error means the candidate could not be classified
// and must not count against any retry budget.
type Validator interface {
	Run(ctx context.Context, source string, opts worker.RunOpts) (*stage.Report, error)
}

// Config bounds one run of the loop.
type Config struct {
	// MaxCircuitRetries caps generation attempts across the whole run.
	MaxCircuitRetries int
	// MaxSpacingRetries caps layout-fix rounds on a single candidate.
	MaxSpacingRetries int
	// Timeout bounds each validation request.
	Timeout time.Duration
	// Temperatures is the per-attempt escalation schedule.
	Temperatures []float64
	// TopK is how many retrieved examples a generation prompt carries.
	TopK int
	// Params holds the spacing thresholds the layout fixer plans against.
	Params geom.Params
}

// Loop drives generation runs end to end: prompt the generator, validate
// the candidate, and route failures through the retry machine until a
// candidate passes or the budgets run out.
type Loop struct {
	store     *pipeline.Store
	db        *db.DB
	gen       generate.Generator
	retriever Retriever
	validator Validator
	prompts   *prompt.Library
	cfg       Config
	progress  io.Writer
}

// NewLoop creates a Loop. retriever may be nil when no example index is
// configured.
func NewLoop(
	store *pipeline.Store,
	database *db.DB,
	gen generate.Generator,
	retriever Retriever,
	validator Validator,
	prompts *prompt.Library,
	cfg Config,
) *Loop {
	return &Loop{
		store:     store,
		db:        database,
		gen:       gen,
		retriever: retriever,
		validator: validator,
		prompts:   prompts,
		cfg:       cfg,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (l *Loop) SetProgress(w io.Writer) { l.progress = w }

func (l *Loop) logf(format string, args ...any) {
	if l.progress != nil {
		fmt.Fprintf(l.progress, format+"\n", args...)
	}
}

// Outcome is the terminal result of one run.
type Outcome struct {
	RunID     string        `json:"run_id"`
	State     State         `json:"state"` // "pass" or "exhausted"
	Attempts  int           `json:"attempts"`
	FixRounds int           `json:"fix_rounds"`
	Code      string        `json:"code,omitempty"`
	Report    *stage.Report `json:"report,omitempty"`
}

// Create initializes a new run in the pending state and returns it without
// doing any work. Execute drives it to an outcome.
func (l *Loop) Create(query string) (*pipeline.RunState, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	id := uuid.NewString()
	rs, err := l.store.Create(id, query)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	_ = l.db.CreateRun(id, query)
	_ = l.db.LogRunEvent(id, "created", 0, "")
	return rs, nil
}

// Run creates a run for the query and drives it to a terminal outcome.
func (l *Loop) Run(ctx context.Context, query string) (*Outcome, error) {
	rs, err := l.Create(query)
	if err != nil {
		return nil, err
	}
	return l.Execute(ctx, rs.ID)
}

// Execute drives a pending run to a terminal outcome. A run that already
// finished returns its recorded outcome without redoing any work; an error
// marks the run failed and means the run itself could not proceed, not that
// the candidate was bad.
func (l *Loop) Execute(ctx context.Context, id string) (*Outcome, error) {
	rs, err := l.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	switch rs.Status {
	case string(Pass), string(Exhausted):
		return outcomeFrom(rs), nil
	case pipeline.StatusFailed:
		return nil, fmt.Errorf("run %s failed previously: %s", id, rs.Error)
	case pipeline.StatusPending:
	default:
		return nil, fmt.Errorf("run %s is already %s", id, rs.Status)
	}

	out, err := l.drive(ctx, id, rs.Query)
	if err != nil {
		failed, _ := l.store.Update(id, func(rs *pipeline.RunState) {
			rs.Status = pipeline.StatusFailed
			rs.Error = err.Error()
		})
		attempts, fixes := 0, 0
		if failed != nil {
			attempts, fixes = len(failed.Attempts), totalFixRounds(failed)
		}
		_ = l.db.FinishRun(id, pipeline.StatusFailed, attempts, fixes)
		_ = l.db.LogRunEvent(id, "failed", attempts, err.Error())
		return nil, err
	}
	return out, nil
}

// drive is the event loop: each iteration does the work of the current
// state, feeds the resulting event to the machine, and records the
// transition. Only the machine decides where the run goes next.
func (l *Loop) drive(ctx context.Context, id, query string) (*Outcome, error) {
	system, err := l.prompts.System()
	if err != nil {
		return nil, fmt.Errorf("load system prompt: %w", err)
	}

	m := NewMachine(l.cfg.MaxCircuitRetries, l.cfg.MaxSpacingRetries)
	if !m.State().Terminal() {
		l.setStatus(id, m.State())
	}

	var (
		candidate string        // current normalized source, empty after a rejected reply
		report    *stage.Report // latest validation report
		rejected  *stage.Report // synthesized report for a reply with no usable code
		totalFix  int
	)

	for !m.State().Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var ev Event
		switch m.State() {
		case Generating:
			attempt := m.CircuitAttempts() + 1
			temp := generate.TemperatureFor(l.cfg.Temperatures, attempt)
			user, err := l.buildPrompt(ctx, query, candidate, report)
			if err != nil {
				return nil, fmt.Errorf("build prompt: %w", err)
			}
			_ = l.store.SavePrompt(id, attempt, user)

			l.logf("attempt %d/%d: generating (temperature %.2g)", attempt, l.cfg.MaxCircuitRetries, temp)
			reply, genErr := l.gen.Generate(ctx, generate.Request{System: system, Prompt: user, Temperature: temp})
			if genErr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				l.logf("attempt %d: generator error: %v", attempt, genErr)
				_, _ = l.store.Update(id, func(rs *pipeline.RunState) {
					rs.Attempts = append(rs.Attempts, pipeline.Attempt{N: attempt, Temperature: temp, GenerateError: genErr.Error()})
				})
				_ = l.db.LogRunEvent(id, "generate_failed", attempt, genErr.Error())
				ev = Event{Kind: EventGenerateFailed}
				break
			}

			src, exErr := ord.ExtractCode(reply)
			if exErr != nil {
				// A reply with no usable code fence is rejected at the
				// boundary and classified as a parse failure; it consumed
				// an attempt like any bad candidate.
				candidate = ""
				rejected = rejectedReport(exErr)
				l.logf("attempt %d: %v", attempt, exErr)
			} else {
				candidate = ord.EnsureParameterDefaults(src)
				rejected = nil
				_ = l.store.SaveAttemptSource(id, attempt, candidate)
			}
			_, _ = l.store.Update(id, func(rs *pipeline.RunState) {
				rs.Attempts = append(rs.Attempts, pipeline.Attempt{N: attempt, Temperature: temp, Candidate: candidate})
			})
			_ = l.db.LogRunEvent(id, "generated", attempt, fmt.Sprintf("temperature %.2g", temp))
			ev = Event{Kind: EventGenerated}

		case Validating:
			attempt := m.CircuitAttempts()
			round := m.SpacingRounds()
			rep := rejected
			rejected = nil
			if rep == nil {
				opts := worker.RunOpts{Selector: worker.Selector{Mode: worker.ModeSequence}, Timeout: l.cfg.Timeout}
				if round > 0 {
					opts.Selector.Mode = worker.ModeRenderOnly
				}
				r, err := l.validator.Run(ctx, candidate, opts)
				if err != nil {
					return nil, fmt.Errorf("validate attempt %d: %w", attempt, err)
				}
				rep = r
			}
			report = rep
			l.recordReport(id, attempt, round, rep)
			l.logf("attempt %d: %s", attempt, verdict(rep))

			var code stage.Code
			if rep.Failure != nil {
				code = rep.Failure.Code
			}
			ev = Event{Kind: EventValidated, Code: code}

		case CircuitRetry:
			_ = l.db.LogRunEvent(id, "retry", m.CircuitAttempts(), string(report.Failure.Code))
			ev = Event{Kind: EventRetry}

		case SpacingFix:
			attempt := m.CircuitAttempts()
			round := m.SpacingRounds() + 1
			edits, planErr := layout.Propose(report.Geometry, report.Failure, l.cfg.Params)
			if planErr == nil {
				var next string
				next, planErr = ord.ApplyEdits(candidate, edits)
				if planErr == nil {
					candidate = next
					totalFix++
					_ = l.store.SaveFixSource(id, attempt, round, next)
					_, _ = l.store.Update(id, func(rs *pipeline.RunState) {
						if attempt-1 < len(rs.Attempts) {
							a := &rs.Attempts[attempt-1]
							a.FixRounds = append(a.FixRounds, pipeline.FixRound{N: round, Edits: edits, Source: next})
						}
					})
					_ = l.db.LogRunEvent(id, "fix_planned", attempt, fmt.Sprintf("round %d: %d edit(s)", round, len(edits)))
					l.logf("fix round %d/%d: %d edit(s)", round, l.cfg.MaxSpacingRetries, len(edits))
					ev = Event{Kind: EventFixPlanned}
					break
				}
			}
			_ = l.db.LogRunEvent(id, "fix_infeasible", attempt, planErr.Error())
			l.logf("fix infeasible: %v", planErr)
			ev = Event{Kind: EventFixInfeasible}

		default:
			return nil, fmt.Errorf("unexpected state %s", m.State())
		}

		next, err := m.Step(ev)
		if err != nil {
			return nil, fmt.Errorf("advance run: %w", err)
		}
		if !next.Terminal() {
			l.setStatus(id, next)
		}
	}

	return l.finalize(ctx, id, m, candidate, report, totalFix)
}

// finalize records the terminal state and assembles the outcome.
func (l *Loop) finalize(ctx context.Context, id string, m *Machine, candidate string, report *stage.Report, totalFix int) (*Outcome, error) {
	out := &Outcome{
		RunID:     id,
		State:     m.State(),
		Attempts:  m.CircuitAttempts(),
		FixRounds: totalFix,
		Report:    report,
	}

	switch m.State() {
	case Pass:
		final := l.stripForDisplay(ctx, candidate)
		out.Code = final
		_, _ = l.store.Update(id, func(rs *pipeline.RunState) {
			rs.Status = string(Pass)
			rs.Final = &pipeline.FinalResult{
				Code:     final,
				Cells:    report.Cells,
				Geometry: report.Geometry,
				SVG:      report.SVG,
			}
		})
		_ = l.db.FinishRun(id, string(Pass), out.Attempts, totalFix)
		_ = l.db.LogRunEvent(id, "pass", out.Attempts, "")
		l.logf("pass after %d attempt(s), %d fix round(s)", out.Attempts, totalFix)

	case Exhausted:
		detail := ""
		if report != nil && report.Failure != nil {
			detail = string(report.Failure.Code)
		}
		_, _ = l.store.Update(id, func(rs *pipeline.RunState) {
			rs.Status = string(Exhausted)
		})
		_ = l.db.FinishRun(id, string(Exhausted), out.Attempts, totalFix)
		_ = l.db.LogRunEvent(id, "exhausted", out.Attempts, detail)
		l.logf("exhausted after %d attempt(s)", out.Attempts)

	default:
		return nil, fmt.Errorf("finalize in non-terminal state %s", m.State())
	}
	return out, nil
}

// buildPrompt picks the prompt for the next attempt: a retry prompt when the
// previous candidate failed validation, otherwise a fresh generation prompt
// with retrieved examples.
func (l *Loop) buildPrompt(ctx context.Context, query, priorCode string, prior *stage.Report) (string, error) {
	if prior != nil && prior.Failure != nil && priorCode != "" {
		return l.prompts.Retry(prior.Failure.Stage, prior.Failure.Message, priorCode)
	}
	return l.prompts.Generation(query, l.exampleContext(ctx, query))
}

// exampleContext fetches retrieval context, degrading to none on any error.
func (l *Loop) exampleContext(ctx context.Context, query string) string {
	if l.retriever == nil {
		return ""
	}
	text, err := l.retriever.ContextFor(ctx, query, l.cfg.TopK)
	if err != nil {
		l.logf("retrieval unavailable: %v", err)
		return ""
	}
	return text
}

// recordReport persists one validation report: on the attempt itself for
// round 0, on the fix round otherwise.
func (l *Loop) recordReport(id string, attempt, round int, rep *stage.Report) {
	if round == 0 {
		_ = l.store.SaveReport(id, attempt, rep)
	}
	_, _ = l.store.Update(id, func(rs *pipeline.RunState) {
		if attempt-1 >= len(rs.Attempts) {
			return
		}
		a := &rs.Attempts[attempt-1]
		if round == 0 {
			a.Report = rep
		} else if round-1 < len(a.FixRounds) {
			a.FixRounds[round-1].Report = rep
		}
	})
	if rep.SVG != "" {
		_ = l.store.SaveSVG(id, attempt, rep.SVG)
	}
	_ = l.db.LogStageResults(id, attempt, round, rep.Stages)
	_ = l.db.LogRunEvent(id, "validated", attempt, verdict(rep))
}

// stripForDisplay removes the explicit helper lines from a passing
// candidate. The toolchain inserts the helpers implicitly, so the stripped
// form normally still renders; if it does not, the explicit form is kept.
func (l *Loop) stripForDisplay(ctx context.Context, candidate string) string {
	final := ord.StripExplicitHelpers(candidate)
	if final == candidate {
		return candidate
	}
	check, err := l.validator.Run(ctx, final, worker.RunOpts{
		Selector: worker.Selector{Mode: worker.ModeRenderOnly},
		Timeout:  l.cfg.Timeout,
	})
	if err != nil || !check.Passed {
		return candidate
	}
	return final
}

// setStatus mirrors the machine state onto the stored run and the event
// log. Terminal states are written by finalize instead.
func (l *Loop) setStatus(id string, s State) {
	_, _ = l.store.Update(id, func(rs *pipeline.RunState) {
		rs.Status = string(s)
	})
	_ = l.db.UpdateRunStatus(id, string(s))
}

// --- Layout fixing outside a run ---

// FixResult describes one spacing-fix session over existing source.
type FixResult struct {
	Passed     bool                `json:"passed"`
	Infeasible bool                `json:"infeasible,omitempty"`
	Source     string              `json:"source"`
	Rounds     []pipeline.FixRound `json:"rounds,omitempty"`
	Report     *stage.Report       `json:"report,omitempty"`
}

// FixLayout validates existing source and, when the first failure is a
// spacing violation, runs the deterministic fix rounds against it. No run
// record is created; the caller owns the source. A failure that is not a
// spacing violation comes back unfixed with its report.
func FixLayout(ctx context.Context, v Validator, source string, cfg Config) (*FixResult, error) {
	rep, err := v.Run(ctx, source, worker.RunOpts{Selector: worker.Selector{Mode: worker.ModeSequence}, Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("validate source: %w", err)
	}
	res := &FixResult{Passed: rep.Passed, Source: source, Report: rep}
	if rep.Passed || rep.Failure == nil || rep.Failure.Code != stage.CodeSpacingViolation {
		return res, nil
	}

	for round := 1; round <= cfg.MaxSpacingRetries; round++ {
		edits, planErr := layout.Propose(rep.Geometry, rep.Failure, cfg.Params)
		if planErr != nil {
			res.Infeasible = true
			return res, nil
		}
		next, applyErr := ord.ApplyEdits(res.Source, edits)
		if applyErr != nil {
			res.Infeasible = true
			return res, nil
		}

		rep, err = v.Run(ctx, next, worker.RunOpts{Selector: worker.Selector{Mode: worker.ModeRenderOnly}, Timeout: cfg.Timeout})
		if err != nil {
			return nil, fmt.Errorf("revalidate fix round %d: %w", round, err)
		}
		res.Source = next
		res.Report = rep
		res.Rounds = append(res.Rounds, pipeline.FixRound{N: round, Edits: edits, Source: next, Report: rep})
		if rep.Passed {
			res.Passed = true
			return res, nil
		}
		if rep.Failure == nil || rep.Failure.Code != stage.CodeSpacingViolation {
			return res, nil
		}
	}
	return res, nil
}

// --- Helpers ---

// rejectedReport classifies a generator reply that carried no usable code.
func rejectedReport(err error) *stage.Report {
	msg := err.Error()
	return &stage.Report{
		Stages:  []stage.Result{{Stage: stage.Parse, Code: stage.CodeParseFailure, Message: msg}},
		Failure: &stage.Failure{Stage: stage.Parse, Code: stage.CodeParseFailure, Message: msg},
	}
}

// verdict renders a report as a one-line event detail.
func verdict(rep *stage.Report) string {
	if rep.Passed {
		return "passed"
	}
	if rep.Failure != nil {
		return fmt.Sprintf("%s: %s", rep.Failure.Code, rep.Failure.Message)
	}
	return "failed"
}

// outcomeFrom rebuilds the outcome of a run that already finished.
func outcomeFrom(rs *pipeline.RunState) *Outcome {
	out := &Outcome{
		RunID:     rs.ID,
		State:     State(rs.Status),
		Attempts:  len(rs.Attempts),
		FixRounds: totalFixRounds(rs),
		Report:    rs.LastReport(),
	}
	if rs.Final != nil {
		out.Code = rs.Final.Code
	}
	return out
}

// totalFixRounds counts fix rounds across every attempt of a run.
func totalFixRounds(rs *pipeline.RunState) int {
	n := 0
	for _, a := range rs.Attempts {
		n += len(a.FixRounds)
	}
	return n
}
