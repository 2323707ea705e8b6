// Package engine executes plans against the filesystem. Execution is
// dry-run by default: a dry-run walks the same code path as a commit,
// with simulated effects, and reports the outcomes a commit would have
// produced. A commit records the inverse of every operation in the
// journal the moment it lands, so an interrupted run is still
// rollbackable up to its last committed operation.
//
// Failures do not cascade. An operation that fails its precheck or its
// apply is recorded as failed and execution moves to the next
// operation; nothing is rolled back automatically. Cancellation is
// honored between operations only, never mid-operation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/journal"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/logging"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/pathlock"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/retain"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// Batch sizing bounds when the caller does not choose.
const (
	defaultBatchSize = 100
	maxBatchSize     = 1000
)

// ErrPrecondition indicates an operation's precheck failed: the
// filesystem no longer matches what the plan assumed.
var ErrPrecondition = errors.New("operation precondition failed")

// ErrVerifyMismatch indicates a delete's verification source no longer
// byte-matches the target.
var ErrVerifyMismatch = errors.New("content verification failed")

// ErrNotRollbackable indicates an execution that cannot be rolled back:
// a dry-run, an already rolled back run, or a run with no entries.
var ErrNotRollbackable = errors.New("execution is not rollbackable")

// ErrUnrecoverable indicates a rollback step whose effect cannot be
// undone because no retained copy exists.
var ErrUnrecoverable = errors.New("operation is unrecoverable")

// OpError wraps a per-operation failure with its position in the plan.
type OpError struct {
	Seq int
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("op %d (%s): %v", e.Seq, e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Deps are the collaborators an engine needs. Retain may be nil, in
// which case deletes are never retained and every delete is recorded
// as unrecoverable.
type Deps struct {
	Resolver *sandbox.Resolver
	Journal  *journal.Journal
	Locks    *pathlock.Manager
	Retain   *retain.Store

	// RetainCeiling is the largest payload, in bytes, moved to
	// retention instead of being deleted outright.
	RetainCeiling int64

	// RetainKeep is how long retained copies are kept before the
	// post-execution purge removes them.
	RetainKeep time.Duration

	// IOTimeout bounds each individual filesystem operation. Zero
	// disables the bound.
	IOTimeout time.Duration
}

// Engine executes and rolls back plans.
type Engine struct {
	resolver  *sandbox.Resolver
	journal   *journal.Journal
	locks     *pathlock.Manager
	retain    *retain.Store
	ceiling   int64
	keep      time.Duration
	ioTimeout time.Duration
	log       *logging.Logger
}

// New creates an engine from its dependencies.
func New(deps Deps) *Engine {
	locks := deps.Locks
	if locks == nil {
		locks = pathlock.NewManager()
	}
	return &Engine{
		resolver:  deps.Resolver,
		journal:   deps.Journal,
		locks:     locks,
		retain:    deps.Retain,
		ceiling:   deps.RetainCeiling,
		keep:      deps.RetainKeep,
		ioTimeout: deps.IOTimeout,
		log:       logging.Get("engine"),
	}
}

// Options select the execution mode for one run. Dry-run by default
// is the caller's policy: the CLI sets DryRun unless --commit is
// passed.
type Options struct {
	// DryRun validates and simulates without mutating.
	DryRun bool

	// BatchSize is the number of operations between journal
	// checkpoints. Zero means the default; values above the maximum
	// are clamped.
	BatchSize int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.BatchSize > maxBatchSize {
		o.BatchSize = maxBatchSize
	}
	return o
}

// Execute runs the plan and returns its execution record. The record
// is journaled for dry-runs too. A run with failed operations returns
// a nil error; the record's status and counters carry the outcome.
// The returned error is non-nil only when the run could not proceed at
// all: a malformed plan, a containment violation, or a journal that
// cannot accept the record.
func (e *Engine) Execute(ctx context.Context, plan *types.Plan, opts Options) (*types.ExecutionRecord, error) {
	opts = opts.withDefaults()

	for i := range plan.Ops {
		if err := plan.Ops[i].Validate(); err != nil {
			return nil, fmt.Errorf("plan %s: %w", plan.ID, err)
		}
	}
	touched := plan.Touches()
	for _, path := range touched {
		if !e.resolver.Within(path) {
			return nil, &sandbox.PathError{Path: path, Err: sandbox.ErrOutOfSandbox}
		}
	}

	rec := &types.ExecutionRecord{
		ID:        uuid.NewString(),
		PlanID:    plan.ID,
		Kind:      plan.Kind,
		DryRun:    opts.DryRun,
		Ops:       make([]types.OperationResult, len(plan.Ops)),
		Status:    types.ExecPending,
		CreatedAt: time.Now().UTC(),
	}
	for i := range plan.Ops {
		rec.Ops[i] = types.OperationResult{Operation: plan.Ops[i], Outcome: types.OutcomePending}
	}
	if err := e.journal.PutExecution(rec); err != nil {
		return nil, fmt.Errorf("recording execution: %w", err)
	}

	release, err := e.locks.Acquire(ctx, touched...)
	if err != nil {
		// Cancelled while waiting for a concurrent run. Nothing was
		// attempted.
		e.finishSkipped(rec, "execution cancelled")
		return rec, nil
	}
	defer release()

	rec.Status = types.ExecRunning
	rec.StartedAt = time.Now().UTC()
	e.checkpoint(rec)

	var mut fileMutator
	if opts.DryRun {
		mut = newSimMutator(e.journal, rec.ID)
	} else {
		mut = &osMutator{journal: e.journal, retain: e.retain, execID: rec.ID}
	}

	e.log.Info("execution started",
		"execution", rec.ID, "plan", plan.ID, "ops", len(plan.Ops), "dry_run", opts.DryRun)

	var (
		entries    int
		bytesFreed int64
		cancelled  bool
	)
	for start := 0; start < len(rec.Ops) && !cancelled; start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(rec.Ops) {
			end = len(rec.Ops)
		}
		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			appended, freed := e.runOp(rec, &rec.Ops[i], mut, opts.DryRun)
			entries += appended
			bytesFreed += freed
		}
		e.checkpoint(rec)
	}

	for i := range rec.Ops {
		if rec.Ops[i].Outcome == types.OutcomePending {
			rec.Ops[i].Outcome = types.OutcomeSkipped
			rec.Ops[i].Message = "execution cancelled"
		}
	}

	rec.Counters = tally(rec.Ops)
	rec.Counters.BytesFreed = bytesFreed
	rec.Status = finalStatus(cancelled, rec.Counters)
	rec.RollbackAvailable = !opts.DryRun && entries > 0
	rec.FinishedAt = time.Now().UTC()
	if err := e.journal.PutExecution(rec); err != nil {
		return rec, fmt.Errorf("recording execution: %w", err)
	}

	e.log.Info("execution finished",
		"execution", rec.ID, "status", rec.Status,
		"succeeded", rec.Counters.Succeeded, "failed", rec.Counters.Failed,
		"skipped", rec.Counters.Skipped, "bytes_freed", rec.Counters.BytesFreed)

	if !opts.DryRun && e.retain != nil && e.keep > 0 {
		if stats, err := e.retain.Purge(e.keep); err != nil {
			e.log.Debug("retention purge failed", "error", err)
		} else if stats.Removed > 0 {
			e.log.Debug("retention purged", "removed", stats.Removed, "bytes", stats.BytesFreed)
		}
	}

	return rec, nil
}

// runOp applies one operation and records its outcome in place. It
// returns the number of rollback entries appended and the bytes freed.
func (e *Engine) runOp(rec *types.ExecutionRecord, res *types.OperationResult, mut fileMutator, dryRun bool) (int, int64) {
	eff, err := e.applyOp(&res.Operation, mut)
	if err != nil {
		opErr := &OpError{Seq: res.Seq, Op: res.Operation.String(), Err: err}
		res.Outcome = types.OutcomeFailed
		res.Message = opErr.Error()
		e.log.Warn("operation failed", "execution", rec.ID, "seq", res.Seq, "error", err)
		return 0, 0
	}

	res.Outcome = types.OutcomeSucceeded
	if eff.entry == nil || dryRun {
		return 0, eff.bytesFreed
	}

	eff.entry.ExecutionID = rec.ID
	eff.entry.Seq = res.Seq
	if err := e.journal.AppendRollback(eff.entry); err != nil {
		// The operation committed; only its undo record is missing.
		res.Message = fmt.Sprintf("rollback entry not recorded: %v", err)
		e.log.Error("rollback entry not recorded", "execution", rec.ID, "seq", res.Seq, "error", err)
		return 0, eff.bytesFreed
	}
	return 1, eff.bytesFreed
}

// finishSkipped marks every pending operation skipped and finalizes the
// record as cancelled.
func (e *Engine) finishSkipped(rec *types.ExecutionRecord, reason string) {
	for i := range rec.Ops {
		if rec.Ops[i].Outcome == types.OutcomePending {
			rec.Ops[i].Outcome = types.OutcomeSkipped
			rec.Ops[i].Message = reason
		}
	}
	rec.Counters = tally(rec.Ops)
	rec.Status = types.ExecCancelled
	rec.FinishedAt = time.Now().UTC()
	e.checkpoint(rec)
}

// checkpoint persists the record mid-run. Failure is logged, not
// fatal: losing a checkpoint only staletens history, the final write
// still happens.
func (e *Engine) checkpoint(rec *types.ExecutionRecord) {
	if err := e.journal.PutExecution(rec); err != nil {
		e.log.Warn("checkpoint failed", "execution", rec.ID, "error", err)
	}
}

func tally(ops []types.OperationResult) types.ExecCounters {
	var c types.ExecCounters
	for i := range ops {
		switch ops[i].Outcome {
		case types.OutcomeSucceeded:
			c.Attempted++
			c.Succeeded++
		case types.OutcomeFailed:
			c.Attempted++
			c.Failed++
		case types.OutcomeSkipped:
			c.Skipped++
		}
	}
	return c
}

func finalStatus(cancelled bool, c types.ExecCounters) types.ExecStatus {
	switch {
	case cancelled:
		return types.ExecCancelled
	case c.Failed > 0:
		return types.ExecFailed
	default:
		return types.ExecCompleted
	}
}

// Rollback replays the inverses of a committed execution in reverse
// order and returns the record of the rollback run. The original
// record flips to rolled_back only when every step succeeds.
// Unrecoverable entries are reported as failed steps, never skipped
// silently.
func (e *Engine) Rollback(ctx context.Context, executionID string) (*types.ExecutionRecord, error) {
	orig, err := e.journal.GetExecution(executionID)
	if err != nil {
		return nil, err
	}
	switch {
	case orig.DryRun:
		return nil, fmt.Errorf("%w: %s is a dry-run", ErrNotRollbackable, executionID)
	case orig.Status == types.ExecRolledBack:
		return nil, fmt.Errorf("%w: %s is already rolled back", ErrNotRollbackable, executionID)
	case !orig.RollbackAvailable:
		return nil, fmt.Errorf("%w: %s has no rollback entries", ErrNotRollbackable, executionID)
	}

	entries, err := e.journal.RollbackEntries(executionID)
	if err != nil {
		return nil, fmt.Errorf("loading rollback entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s has no rollback entries", ErrNotRollbackable, executionID)
	}

	// Undo in reverse commit order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	rec := &types.ExecutionRecord{
		ID:         uuid.NewString(),
		PlanID:     orig.PlanID,
		Kind:       orig.Kind,
		RollbackOf: executionID,
		Ops:        make([]types.OperationResult, len(entries)),
		Status:     types.ExecPending,
		CreatedAt:  time.Now().UTC(),
	}
	for i, entry := range entries {
		op := entry.Op
		if entry.Inverse != nil {
			op = *entry.Inverse
		}
		op.Seq = i
		rec.Ops[i] = types.OperationResult{Operation: op, Outcome: types.OutcomePending}
	}
	if err := e.journal.PutExecution(rec); err != nil {
		return nil, fmt.Errorf("recording rollback: %w", err)
	}

	release, err := e.locks.Acquire(ctx, rollbackTouches(entries)...)
	if err != nil {
		e.finishSkipped(rec, "rollback cancelled")
		return rec, nil
	}
	defer release()

	rec.Status = types.ExecRunning
	rec.StartedAt = time.Now().UTC()
	e.checkpoint(rec)

	e.log.Info("rollback started", "execution", rec.ID, "rollback_of", executionID, "steps", len(entries))

	cancelled := false
	for i, entry := range entries {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if err := e.applyInverse(entry); err != nil {
			rec.Ops[i].Outcome = types.OutcomeFailed
			rec.Ops[i].Message = err.Error()
			e.log.Warn("rollback step failed", "execution", rec.ID, "seq", entry.Seq, "error", err)
		} else {
			rec.Ops[i].Outcome = types.OutcomeSucceeded
		}
		if (i+1)%defaultBatchSize == 0 {
			e.checkpoint(rec)
		}
	}

	for i := range rec.Ops {
		if rec.Ops[i].Outcome == types.OutcomePending {
			rec.Ops[i].Outcome = types.OutcomeSkipped
			rec.Ops[i].Message = "rollback cancelled"
		}
	}

	rec.Counters = tally(rec.Ops)
	rec.Status = finalStatus(cancelled, rec.Counters)
	rec.FinishedAt = time.Now().UTC()
	if err := e.journal.PutExecution(rec); err != nil {
		return rec, fmt.Errorf("recording rollback: %w", err)
	}

	if rec.Status == types.ExecCompleted {
		orig.Status = types.ExecRolledBack
		orig.RollbackAvailable = false
		if err := e.journal.PutExecution(orig); err != nil {
			return rec, fmt.Errorf("marking %s rolled back: %w", executionID, err)
		}
	}

	e.log.Info("rollback finished", "execution", rec.ID, "status", rec.Status,
		"succeeded", rec.Counters.Succeeded, "failed", rec.Counters.Failed)

	return rec, nil
}

// rollbackTouches is the sorted union of every path the rollback reads
// or writes: the committed operations, their inverses, and the retained
// copies being put back.
func rollbackTouches(entries []*types.RollbackEntry) []string {
	seen := make(map[string]struct{})
	for _, entry := range entries {
		for _, path := range entry.Op.Touches() {
			seen[path] = struct{}{}
		}
		if entry.Inverse != nil {
			for _, path := range entry.Inverse.Touches() {
				seen[path] = struct{}{}
			}
		}
		for _, r := range entry.Restores {
			seen[r.From] = struct{}{}
			seen[r.To] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
