// Package engine drives one ticket from analysis to a verified, committed
// change. It owns the run-level state machine: pre-flight analysis and cost
// estimation, strategy planning, checkpointed attempts, gate evaluation,
// and rollback. Lower layers report; only the engine decides.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/ticketsmith/internal/agent"
	"github.com/kestrelworks/ticketsmith/internal/attempt"
	"github.com/kestrelworks/ticketsmith/internal/budget"
	"github.com/kestrelworks/ticketsmith/internal/checkpoint"
	"github.com/kestrelworks/ticketsmith/internal/exec"
	"github.com/kestrelworks/ticketsmith/internal/gates"
	"github.com/kestrelworks/ticketsmith/internal/git"
	"github.com/kestrelworks/ticketsmith/internal/history"
	"github.com/kestrelworks/ticketsmith/internal/planner"
	"github.com/kestrelworks/ticketsmith/internal/sanitize"
	"github.com/kestrelworks/ticketsmith/internal/ticket"
	"github.com/kestrelworks/ticketsmith/internal/validate"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// ErrInfrastructure marks faults in the engine's own machinery (checkpoint
// creation, gate evaluation environment). They are fatal immediately: with
// broken snapshots no rollback guarantee can be kept.
var ErrInfrastructure = errors.New("infrastructure fault")

// Status classifies how a run ended.
type Status string

const (
	// StatusDone means an attempt passed the gates and its changes remain.
	StatusDone Status = "done"
	// StatusExhausted means every strategy failed; the workspace matches
	// the pre-run state.
	StatusExhausted Status = "exhausted"
	// StatusAborted means the run stopped before or between attempts:
	// unclear ticket, cost estimate over budget, budget exhaustion,
	// timeout, or stop request.
	StatusAborted Status = "aborted"
)

// Result is the final report of one ticket run.
type Result struct {
	RunID        string        `json:"run_id"`
	TicketID     string        `json:"ticket_id"`
	Status       Status        `json:"status"`
	AbortReason  string        `json:"abort_reason,omitempty"`
	StrategyUsed string        `json:"strategy_used,omitempty"`
	AttemptsUsed int           `json:"attempts_used"`
	Summary      string        `json:"summary,omitempty"`
	FilesChanged int           `json:"files_changed"`
	Warnings     []string      `json:"warnings,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	Cost         float64       `json:"cost"`
	Tokens       int64         `json:"tokens"`
	Duration     time.Duration `json:"duration"`
}

// Config holds the run parameters.
type Config struct {
	WorkspaceRoot          string
	MaxStrategies          int
	MaxAttemptsPerStrategy int
	MaxActionsPerAttempt   int
	UseCheckpoints         bool
	TicketTimeout          time.Duration
	QualityMode            gates.Mode
	Gates                  gates.Config
	TaskBudget             models.Budget
	RankWeights            models.RankWeights
}

// Deps are the collaborators an engine runs with.
type Deps struct {
	Agent   agent.Agent
	Ledger  *budget.Ledger
	Git     git.Runner
	Exec    exec.CommandRunner
	History *history.Store // optional
	Logger  *DebugLogger   // optional
}

// Engine runs exactly one ticket. Instances share nothing but the ledger;
// create a new engine per run.
type Engine struct {
	cfg  Config
	deps Deps
	log  *DebugLogger

	meter       *budget.TaskMeter
	analyzer    *ticket.Analyzer
	planner     *planner.Planner
	driver      *attempt.Driver
	checkpoints *checkpoint.Store
	evaluator   *gates.Evaluator

	ran bool
}

// New wires an engine from config and dependencies. Gate configuration is
// validated here so a bad check name fails before any spend.
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("engine: workspace root is required")
	}
	applyDefaults(&cfg)

	log := deps.Logger
	if log == nil {
		log = NopLogger()
	}

	tiers := gates.ApplyMode(cfg.Gates, cfg.QualityMode)
	evaluator, err := gates.New(deps.Exec, deps.Git, cfg.WorkspaceRoot, tiers)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	meter := deps.Ledger.NewTask(cfg.TaskBudget)

	plannerOpts := []planner.Option{
		planner.WithMeter(meter),
		planner.WithMaxStrategies(cfg.MaxStrategies),
	}
	if deps.History != nil {
		plannerOpts = append(plannerOpts, planner.WithHinter(deps.History))
	}

	validator := validate.New(deps.Exec, cfg.WorkspaceRoot)
	executor := attempt.NewExecutor(cfg.WorkspaceRoot, deps.Exec, deps.Git)

	return &Engine{
		cfg:  cfg,
		deps: deps,
		log:  log,

		meter:    meter,
		analyzer: ticket.NewAnalyzer(deps.Agent, meter),
		planner:  planner.New(deps.Agent, plannerOpts...),
		driver: attempt.NewDriver(deps.Agent, meter, executor, validator,
			attempt.WithMaxActions(cfg.MaxActionsPerAttempt),
			attempt.WithLogger(log.Log)),
		checkpoints: checkpoint.NewStore(deps.Git),
		evaluator:   evaluator,
	}, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MaxStrategies == 0 {
		cfg.MaxStrategies = 3
	}
	if cfg.MaxAttemptsPerStrategy == 0 {
		cfg.MaxAttemptsPerStrategy = 3
	}
	if cfg.MaxActionsPerAttempt == 0 {
		cfg.MaxActionsPerAttempt = attempt.DefaultMaxActions
	}
	if cfg.TicketTimeout == 0 {
		cfg.TicketTimeout = 30 * time.Minute
	}
	if cfg.QualityMode == "" {
		cfg.QualityMode = gates.ModeStandard
	}
	if len(cfg.Gates.Critical)+len(cfg.Gates.Required)+len(cfg.Gates.Recommended) == 0 {
		cfg.Gates = gates.DefaultConfig()
	}
	if cfg.RankWeights == (models.RankWeights{}) {
		cfg.RankWeights = models.DefaultRankWeights()
	}
}

// Run executes the full state machine for one ticket. The returned Result
// is non-nil whenever the run itself concluded, even on abort; a bare error
// means an infrastructure fault.
func (e *Engine) Run(ctx context.Context, t models.Ticket) (*Result, error) {
	if e.ran {
		return nil, fmt.Errorf("engine: already ran; engines are single-shot")
	}
	e.ran = true

	res := &Result{RunID: uuid.NewString(), TicketID: t.ID}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		usage := e.meter.Usage()
		res.Cost = usage.Cost
		res.Tokens = usage.Tokens
		res.Warnings = append(res.Warnings, e.deps.Ledger.Warnings()...)
		e.recordOutcome(t, res)
	}()

	if stopRequested(e.cfg.WorkspaceRoot) {
		return e.abort(res, "stop file present before run started"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TicketTimeout)
	defer cancel()
	stopCleanup := watchStop(ctx, cancel, e.cfg.WorkspaceRoot, e.log)
	defer stopCleanup()

	e.log.Log("run %s: ticket %s %q", res.RunID, t.ID, t.Title)

	// Pre-flight: analysis, then the cost estimate it feeds.
	analysis, err := e.analyzer.Analyze(ctx, t)
	if err != nil {
		return e.preflightFailure(res, "ticket analysis", err)
	}
	e.log.Log("analysis: clarity=%d implementable=%v complexity=%d risk=%s",
		analysis.ClarityScore, analysis.Implementable, analysis.Complexity, analysis.Risk)
	if !analysis.ShouldProceed() {
		reason := fmt.Sprintf("ticket too unclear to implement (clarity %d)", analysis.ClarityScore)
		if len(analysis.MissingInfo) > 0 {
			reason += ": " + analysis.MissingInfo[0]
		}
		return e.abort(res, reason), nil
	}

	promptTokens := int64(len(t.Title)+len(t.Body)) / 4
	est := e.deps.Ledger.EstimateTicket(promptTokens, analysis.Complexity)
	e.log.Log("estimate: %d tokens $%.2f confidence %.2f", est.Tokens, est.Cost, est.Confidence)
	if !e.meter.Authorize(est.Tokens) {
		return e.abort(res, fmt.Sprintf("estimated cost $%.2f exceeds remaining budget", est.Cost)), nil
	}
	// The estimate only proves headroom; actual spend is authorized per call.
	e.meter.ReleaseReservation()

	strategies, err := e.planner.Generate(ctx, t, analysis.Summary)
	if err != nil {
		return e.preflightFailure(res, "strategy planning", err)
	}
	ranked := e.planner.Rank(strategies, e.cfg.RankWeights, t.Labels)
	if len(ranked) > e.cfg.MaxStrategies {
		ranked = ranked[:e.cfg.MaxStrategies]
	}
	for i, s := range ranked {
		e.log.Log("strategy %d: %q score %.3f risk %s complexity %d", i+1, s.Name, s.Score, s.Risk, s.Complexity)
	}

	return e.runStrategies(ctx, t, ranked, res)
}

// runStrategies consumes the ranked strategy sequence front-to-back,
// attempting each up to the per-strategy cap.
func (e *Engine) runStrategies(ctx context.Context, t models.Ticket, ranked []models.Strategy, res *Result) (*Result, error) {
	baseline, err := e.createCheckpoint("run-baseline")
	if err != nil {
		return nil, err
	}
	// With checkpoints disabled the gates still need a pre-run ref to diff
	// against; record HEAD once instead of snapshotting.
	baseRef := baseline.CommitHash
	if !e.cfg.UseCheckpoints {
		baseRef, err = e.deps.Git.Head()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
		}
	}

	for si, strat := range ranked {
		res.StrategyUsed = strat.Name
		var feedback []string

		for attemptNo := 1; attemptNo <= e.cfg.MaxAttemptsPerStrategy; attemptNo++ {
			cp, err := e.createCheckpoint(fmt.Sprintf("strategy-%d-attempt-%d", si+1, attemptNo))
			if err != nil {
				return nil, err
			}

			res.AttemptsUsed++
			e.log.Log("attempt %d of strategy %q", attemptNo, strat.Name)

			ares, aerr := e.driver.Run(ctx, t, strat, feedback)
			switch {
			case errors.Is(aerr, budget.ErrExhausted):
				e.rollback(cp, res)
				return e.abort(res, "budget exhausted mid-run"), nil
			case errors.Is(aerr, context.Canceled), errors.Is(aerr, context.DeadlineExceeded):
				e.rollback(cp, res)
				return e.abort(res, cancellationReason(ctx)), nil
			case aerr != nil:
				// Transport or fatal-malformed failure: this attempt is
				// lost, the run is not.
				e.log.Log("attempt failed: %v", aerr)
				e.rollback(cp, res)
				res.Errors = append(res.Errors, sanitize.Sanitize(aerr.Error()))
				if !e.cfg.UseCheckpoints {
					return e.abort(res, "attempt failed and rollback is disabled"), nil
				}
				feedback = []string{"the previous attempt aborted: " + sanitize.Sanitize(aerr.Error())}
				continue
			}

			res.Warnings = append(res.Warnings, ares.Warnings...)

			if !ares.Completed {
				e.log.Log("attempt ended without completion: %s", ares.Reason)
				e.rollback(cp, res)
				res.Errors = append(res.Errors, fmt.Sprintf("attempt ended early: %s", ares.Reason))
				if !e.cfg.UseCheckpoints {
					return e.abort(res, fmt.Sprintf("attempt ended early (%s) and rollback is disabled", ares.Reason)), nil
				}
				feedback = attemptFeedback(ares)
				continue
			}

			gateRef := cp.CommitHash
			if gateRef == "" {
				gateRef = baseRef
			}
			report, gerr := e.evaluator.Evaluate(ctx, gateRef)
			if gerr != nil {
				return nil, fmt.Errorf("%w: %v", ErrInfrastructure, gerr)
			}

			if report.HasCriticalFailures() {
				e.log.Log("critical gate failures: %d", len(report.CriticalFailures()))
				e.rollback(cp, res)
				for _, f := range report.CriticalFailures() {
					res.Errors = append(res.Errors, fmt.Sprintf("critical gate %q failed: %s", f.Name, f.Detail))
				}
				// Retrying without rollback would stack attempts on a dirty
				// tree; the failure ends the run instead.
				if !e.cfg.UseCheckpoints {
					return e.abort(res, "critical gate failure and rollback is disabled"), nil
				}
				feedback = gateFeedback(report, ares)
				continue
			}

			// First attempt with no critical failures wins. Required and
			// recommended failures ride along as warnings.
			if e.cfg.UseCheckpoints {
				e.checkpoints.SetQualityScore(cp.ID, qualityScore(report))
			}
			res.Status = StatusDone
			res.Summary = ares.Summary
			res.Warnings = append(res.Warnings, report.Warnings()...)
			if changed, err := e.deps.Git.ChangedFiles(gateRef); err == nil {
				res.FilesChanged = len(changed)
			}
			e.log.Log("run done: strategy %q after %d attempt(s)", strat.Name, res.AttemptsUsed)
			return res, nil
		}
	}

	// Nothing worked. The exhausted guarantee: the tree ends bit-identical
	// to the pre-run state.
	e.rollback(baseline, res)
	res.Status = StatusExhausted
	e.log.Log("run exhausted after %d attempt(s)", res.AttemptsUsed)
	return res, nil
}

// createCheckpoint snapshots the tree unless checkpointing is disabled.
// A creation failure is an infrastructure fault.
func (e *Engine) createCheckpoint(label string) (checkpoint.Checkpoint, error) {
	if !e.cfg.UseCheckpoints {
		return checkpoint.Checkpoint{}, nil
	}
	cp, err := e.checkpoints.Create(label)
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	e.log.Log("checkpoint %q at %s", label, cp.CommitHash)
	return cp, nil
}

// rollback restores a checkpoint, downgrading failures to warnings: at this
// point the run is already on a failure path and the caller's decision
// stands either way.
func (e *Engine) rollback(cp checkpoint.Checkpoint, res *Result) {
	if !e.cfg.UseCheckpoints || cp.CommitHash == "" {
		return
	}
	if err := e.checkpoints.Rollback(cp); err != nil {
		e.log.Log("rollback to %q failed: %v", cp.Label, err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("rollback to %q failed: %v", cp.Label, err))
		return
	}
	e.log.Log("rolled back to %q", cp.Label)
}

func (e *Engine) abort(res *Result, reason string) *Result {
	res.Status = StatusAborted
	res.AbortReason = reason
	e.log.Log("run aborted: %s", reason)
	return res
}

// preflightFailure maps pre-attempt errors: budget denial is a clean abort,
// anything else propagates.
func (e *Engine) preflightFailure(res *Result, stage string, err error) (*Result, error) {
	if errors.Is(err, budget.ErrExhausted) {
		return e.abort(res, stage+" denied: budget exhausted"), nil
	}
	return nil, fmt.Errorf("%s: %w", stage, err)
}

func (e *Engine) recordOutcome(t models.Ticket, res *Result) {
	if e.deps.History == nil || res.Status == "" {
		return
	}
	err := e.deps.History.Record(models.Outcome{
		TicketID:        t.ID,
		Labels:          t.Labels,
		Success:         res.Status == StatusDone,
		StrategyUsed:    res.StrategyUsed,
		AttemptsUsed:    res.AttemptsUsed,
		Cost:            res.Cost,
		DurationSeconds: res.Duration.Seconds(),
		FilesChanged:    res.FilesChanged,
		ErrorMessages:   sanitizeAll(res.Errors),
	})
	if err != nil {
		e.log.Log("could not record outcome: %v", err)
	}
}

func sanitizeAll(msgs []string) []string {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = sanitize.Sanitize(m)
	}
	return out
}

func cancellationReason(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "ticket timeout reached"
	}
	return "run stopped"
}

// qualityScore condenses a gate report into the checkpoint's 0-100 score.
func qualityScore(report *gates.Report) float64 {
	score := 100.0
	score -= 15 * float64(len(report.RequiredFailures()))
	score -= 5 * float64(len(report.RecommendedFailures()))
	if score < 0 {
		score = 0
	}
	return score
}

func attemptFeedback(ares *attempt.Result) []string {
	out := make([]string, 0, len(ares.Issues)+1)
	switch ares.Reason {
	case attempt.ReasonActionCap:
		out = append(out, "the previous attempt hit the action limit; plan fewer, larger steps")
	case attempt.ReasonMalformed:
		out = append(out, "the previous attempt produced unusable output; respond only with the JSON action format")
	}
	out = append(out, ares.Issues...)
	return out
}

func gateFeedback(report *gates.Report, ares *attempt.Result) []string {
	var out []string
	for _, f := range report.CriticalFailures() {
		msg := fmt.Sprintf("critical check %q failed", f.Name)
		if f.Detail != "" {
			msg += ": " + f.Detail
		}
		out = append(out, msg)
	}
	for _, f := range report.RequiredFailures() {
		msg := fmt.Sprintf("required check %q failed", f.Name)
		if f.Detail != "" {
			msg += ": " + f.Detail
		}
		out = append(out, msg)
	}
	out = append(out, ares.Issues...)
	return out
}
