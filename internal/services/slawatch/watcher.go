package slawatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/DispatchBox/internal/broker/messages"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/storage/pgdispatch"
)

type Repository interface {
	ClaimDueSLAChecks(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*pgdispatch.SLACheck, error)
	CompleteSLACheck(ctx context.Context, caseID uint64, status *string, next time.Time, failed bool) error
	DropSLACheck(ctx context.Context, caseID uint64) error
}

// CaseSource supplies the current case snapshot from the case tracker.
type CaseSource interface {
	Case(ctx context.Context, caseID uint64) (models.CaseSnapshot, error)
}

// Evaluator selects the current checkpoint for a case.
type Evaluator interface {
	EvaluateCase(ctx context.Context, snap models.CaseSnapshot) (*models.SLAResult, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Watcher struct {
	repo      Repository
	cases     CaseSource
	evaluator Evaluator
	producer  Producer

	topic   string
	planner *Planner

	pollInterval time.Duration
	batchSize    int
	concurrency  int
	lease        time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, cases CaseSource, evaluator Evaluator, producer Producer, topic string) *Watcher {
	return &Watcher{
		repo: repo, cases: cases, evaluator: evaluator, producer: producer, topic: topic,
		planner:           NewPlanner(DefaultPlannerConfig()),
		pollInterval:      5 * time.Second,
		batchSize:         100,
		concurrency:       10,
		lease:             120 * time.Second,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (w *Watcher) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Watcher {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if lease > 0 {
		w.lease = lease
	}
	return w
}

func (w *Watcher) WithPlanner(cfg PlannerConfig) *Watcher {
	w.planner = NewPlanner(cfg)
	return w
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (w *Watcher) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (w *Watcher) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalClaimed:   w.totalClaimed.Load(),
		TotalProcessed: w.totalProcessed.Load(),
		TotalErrors:    w.totalErrors.Load(),
		InFlight:       w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			w.runOnce(ctx)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	w.lastCycleUnixNano.Store(now.UnixNano())

	items, err := w.repo.ClaimDueSLAChecks(ctx, now, w.batchSize, w.lease)
	if err != nil {
		slog.Error("claim due sla checks", "error", err.Error())
		w.lastErrorMu.Lock()
		w.lastError = err.Error()
		w.lastErrorMu.Unlock()
		return
	}
	w.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, chk := range items {
		sem <- struct{}{}
		wg.Add(1)
		chkCopy := chk
		w.inFlight.Add(1)
		go func() {
			defer func() {
				w.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := w.processOne(ctx, chkCopy); err != nil {
				w.totalErrors.Add(1)
				w.lastErrorMu.Lock()
				w.lastError = err.Error()
				w.lastErrorMu.Unlock()
				slog.Error("process sla check", "case_id", chkCopy.CaseID, "error", err.Error())
			}
			w.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (w *Watcher) processOne(ctx context.Context, chk *pgdispatch.SLACheck) error {
	now := time.Now().UTC()

	evt := messages.SLACheckpointEvent{
		CaseID:    chk.CaseID,
		CheckedAt: now,
	}

	snap, err := w.cases.Case(ctx, chk.CaseID)
	if err != nil {
		return w.fail(ctx, chk, evt, now, err)
	}

	res, err := w.evaluator.EvaluateCase(ctx, snap)
	if err != nil {
		return w.fail(ctx, chk, evt, now, err)
	}

	var status *string
	if res != nil {
		evt.CheckpointID = res.Checkpoint.ConfigID
		evt.Label = res.Label
		evt.Status = res.Checkpoint.Status
		status = &res.Checkpoint.Status
	}
	if err := w.publish(ctx, chk.CaseID, evt); err != nil {
		return err
	}

	if snap.Status == models.CaseStatusClosed {
		return w.repo.DropSLACheck(ctx, chk.CaseID)
	}
	next := now.Add(w.planner.NextCheckDelay(snap.Status))
	return w.repo.CompleteSLACheck(ctx, chk.CaseID, status, next, false)
}

// fail publishes the error event and backs off the next check. The row
// keeps its fail counter so repeated failures spread out.
func (w *Watcher) fail(ctx context.Context, chk *pgdispatch.SLACheck, evt messages.SLACheckpointEvent, now time.Time, cause error) error {
	e := cause.Error()
	evt.Error = &e
	if err := w.publish(ctx, chk.CaseID, evt); err != nil {
		slog.Warn("publish sla error event", "case_id", chk.CaseID, "error", err)
	}
	next := now.Add(w.planner.BackoffDelay(chk.FailCount + 1))
	if err := w.repo.CompleteSLACheck(ctx, chk.CaseID, nil, next, true); err != nil {
		return err
	}
	return cause
}

func (w *Watcher) publish(ctx context.Context, caseID uint64, evt messages.SLACheckpointEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal sla event")
	}
	return w.producer.Publish(ctx, w.topic, []byte(fmt.Sprintf("%d", caseID)), b)
}
