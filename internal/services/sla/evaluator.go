package sla

import (
	"context"

	"github.com/BearBump/DispatchBox/internal/metrics"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

// Checkpoint labels and their configuration ids as provisioned in the
// case tracker. The ids identify checkpoint records, not rules.
const (
	LabelAssignmentAcceptance = "Assignment & Acceptance"
	LabelReachedPickup        = "Reached Pickup"
	LabelReachedBreakdown     = "Reached Breakdown"

	ConfigTransferAssignment uint64 = 1
	ConfigTransferPickup     uint64 = 2
	ConfigRoadsideAssignment uint64 = 3
	ConfigRoadsideBreakdown  uint64 = 4
)

// PaymentClassifier names the three advance-payment classifier ids for
// one case type.
type PaymentClassifier struct {
	PaymentTypeID     uint64
	TransactionTypeID uint64
	PaymentStatusID   uint64
}

// CheckpointLister fetches a case's checkpoint records from the case
// tracker. Used for vehicle-transfer cases only.
type CheckpointLister interface {
	SLACheckpoints(ctx context.Context, caseID uint64) ([]models.SLACheckpoint, error)
}

type Service struct {
	tracker     CheckpointLister
	classifiers map[string]PaymentClassifier
}

func New(tracker CheckpointLister) *Service {
	return &Service{
		tracker: tracker,
		classifiers: map[string]PaymentClassifier{
			models.CaseTypeVehicleTransfer: {PaymentTypeID: 1, TransactionTypeID: 2, PaymentStatusID: 3},
			models.CaseTypeRoadsideAssist:  {PaymentTypeID: 1, TransactionTypeID: 4, PaymentStatusID: 3},
		},
	}
}

// WithClassifier overrides the advance-payment classifier for a case type.
func (s *Service) WithClassifier(caseType string, c PaymentClassifier) *Service {
	s.classifiers[caseType] = c
	return s
}

// EvaluateCase fetches the checkpoint records itself before evaluating.
// This is the vehicle-transfer entry point.
func (s *Service) EvaluateCase(ctx context.Context, snap models.CaseSnapshot) (*models.SLAResult, error) {
	checkpoints, err := s.tracker.SLACheckpoints(ctx, snap.ID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch sla checkpoints")
	}
	return s.Evaluate(snap, checkpoints), nil
}

// Evaluate selects the current checkpoint for a case from a supplied
// record list. Nil means no checkpoint applies, which is not an error.
func (s *Service) Evaluate(snap models.CaseSnapshot, checkpoints []models.SLACheckpoint) *models.SLAResult {
	configID, label, ok := s.selectCheckpoint(snap)
	if !ok {
		metrics.SLAEvaluations.WithLabelValues("none").Inc()
		return nil
	}
	for _, cp := range checkpoints {
		if cp.ConfigID == configID {
			metrics.SLAEvaluations.WithLabelValues(label).Inc()
			return &models.SLAResult{Checkpoint: cp, Label: label}
		}
	}
	// No record provisioned for the selected rule.
	metrics.SLAEvaluations.WithLabelValues("missing").Inc()
	return nil
}

func (s *Service) selectCheckpoint(snap models.CaseSnapshot) (uint64, string, bool) {
	switch snap.Status {
	case models.CaseStatusOpen, models.CaseStatusInProgress, models.CaseStatusClosed:
	default:
		return 0, "", false
	}

	assigned := snap.AgentAssignedAt != nil
	accepted := snap.ProviderAcceptedAt != nil
	negative := terminalNegative(snap.ActivityStatus)
	activityOpen := snap.ActivityStatus == models.ActivityStatusOpen

	switch snap.Type {
	case models.CaseTypeVehicleTransfer:
		paid := s.qualifyingPayment(snap)
		if assigned && (activityOpen || (accepted && !paid)) && !negative {
			return ConfigTransferAssignment, LabelAssignmentAcceptance, true
		}
		if accepted && paid && !negative {
			return ConfigTransferPickup, LabelReachedPickup, true
		}
	case models.CaseTypeRoadsideAssist:
		// Roadside accepts cash or waived payment as satisfying the gate.
		paid := s.qualifyingPayment(snap) || snap.NoPaymentRequired || snap.CashPayment
		if assigned && (activityOpen || (accepted && !paid)) && !negative {
			return ConfigRoadsideAssignment, LabelAssignmentAcceptance, true
		}
		if accepted && paid && !negative {
			return ConfigRoadsideBreakdown, LabelReachedBreakdown, true
		}
	}
	return 0, "", false
}

func terminalNegative(activityStatus string) bool {
	switch activityStatus {
	case models.ActivityStatusCancelled, models.ActivityStatusFailed, models.ActivityStatusRejected:
		return true
	}
	return false
}

// qualifyingPayment reports whether the case carries an advance payment
// matching the case type's classifier ids with a paid timestamp. A
// payment whose refund went through does not qualify; a failed refund
// leaves it qualifying.
func (s *Service) qualifyingPayment(snap models.CaseSnapshot) bool {
	c, ok := s.classifiers[snap.Type]
	if !ok {
		return false
	}
	for _, tx := range snap.Transactions {
		if tx.PaymentTypeID != c.PaymentTypeID ||
			tx.TransactionTypeID != c.TransactionTypeID ||
			tx.PaymentStatusID != c.PaymentStatusID {
			continue
		}
		if tx.PaidAt == nil {
			continue
		}
		if tx.RefundStatus != nil && *tx.RefundStatus != models.RefundStatusFailed {
			continue
		}
		return true
	}
	return false
}
