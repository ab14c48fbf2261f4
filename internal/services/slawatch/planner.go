package slawatch

import (
	"time"

	"github.com/BearBump/DispatchBox/internal/models"
)

type PlannerConfig struct {
	OpenDelay       time.Duration // default: 5 minutes
	InProgressDelay time.Duration // default: 10 minutes
	UnknownDelay    time.Duration // default: 30 minutes

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		OpenDelay:       5 * time.Minute,
		InProgressDelay: 10 * time.Minute,
		UnknownDelay:    30 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.OpenDelay <= 0 {
		cfg.OpenDelay = def.OpenDelay
	}
	if cfg.InProgressDelay <= 0 {
		cfg.InProgressDelay = def.InProgressDelay
	}
	if cfg.UnknownDelay <= 0 {
		cfg.UnknownDelay = def.UnknownDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	return &Planner{cfg: cfg}
}

// NextCheckDelay schedules open cases tighter than in-progress ones.
// Closed cases are dropped from the queue, not re-planned.
func (p *Planner) NextCheckDelay(caseStatus string) time.Duration {
	switch caseStatus {
	case models.CaseStatusOpen:
		return p.cfg.OpenDelay
	case models.CaseStatusInProgress:
		return p.cfg.InProgressDelay
	default:
		return p.cfg.UnknownDelay
	}
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
