package models

import (
	"strconv"
	"time"
)

// Normalized technician work statuses (can be extended).
const (
	WorkStatusOffline   = "OFFLINE"
	WorkStatusAvailable = "AVAILABLE"
	WorkStatusBusy      = "BUSY"
	WorkStatusOnShift   = "ON_SHIFT"
)

const (
	EmploymentCompany    = "COMPANY"
	EmploymentThirdParty = "THIRD_PARTY"
)

const (
	CaseTypeVehicleTransfer = "VEHICLE_TRANSFER"
	CaseTypeRoadsideAssist  = "ROADSIDE_ASSISTANCE"
)

const (
	CaseStatusOpen       = "OPEN"
	CaseStatusInProgress = "IN_PROGRESS"
	CaseStatusClosed     = "CLOSED"
)

const (
	ActivityStatusOpen      = "OPEN"
	ActivityStatusAccepted  = "ACCEPTED"
	ActivityStatusCancelled = "CANCELLED"
	ActivityStatusFailed    = "FAILED"
	ActivityStatusRejected  = "REJECTED"
)

const (
	SLAStatusAchieved    = "ACHIEVED"
	SLAStatusNotAchieved = "NOT_ACHIEVED"
	SLAStatusExceeded    = "EXCEEDED"
	SLAStatusInProgress  = "IN_PROGRESS"
)

const (
	RefundStatusFailed    = "FAILED"
	RefundStatusProcessed = "PROCESSED"
)

// Coord is a WGS84 point.
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Key returns the literal "<lat>,<lng>" cache key. No normalization:
// two formattings of the same point are distinct keys on purpose.
func (c Coord) Key() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

type Provider struct {
	ID           uint64
	Code         string
	Name         string
	WorkshopName string

	Lat float64
	Lng float64
	// Last position reported by the patrol vehicle. Only meaningful for
	// company-patrol providers with an active shift log.
	LastKnownLat *float64
	LastKnownLng *float64
	OnShift      bool

	CompanyPatrol   bool
	PatrolVehicleID *uint64

	ContactPrimary   string
	ContactSecondary *string

	Deleted bool
}

// Position resolves the coordinate the locator should rank against.
func (p Provider) Position() Coord {
	if p.CompanyPatrol && p.OnShift && p.LastKnownLat != nil && p.LastKnownLng != nil {
		return Coord{Lat: *p.LastKnownLat, Lng: *p.LastKnownLng}
	}
	return Coord{Lat: p.Lat, Lng: p.Lng}
}

type Technician struct {
	ID         uint64
	ProviderID *uint64
	Code       string
	Name       string
	Phone      *string

	// Stored shift state; nil means never set.
	WorkStatus *string

	Employment      string
	PatrolVehicleID *uint64
}

type PatrolVehicle struct {
	ID           uint64
	ProviderID   uint64
	Registration string
}

// RouteInfo is the payload observed from the external routing provider.
type RouteInfo struct {
	DistanceMeters  int64  `json:"distance_meters"`
	DurationSeconds int64  `json:"duration_seconds"`
	DistanceText    string `json:"distance_text"`
	DurationText    string `json:"duration_text"`
}

// DistanceKM is the cache-level figure: meters/1000 rounded to whole km.
func (r RouteInfo) DistanceKM() int64 {
	km := float64(r.DistanceMeters) / 1000.0
	return int64(km + 0.5)
}

// RouteLeg is one resolved (origin, destination) pair. Info is nil when the
// external provider failed or returned nothing for the pair.
type RouteLeg struct {
	Origin      Coord
	Destination Coord
	Info        *RouteInfo
}

func (l RouteLeg) Available() bool { return l.Info != nil }

type LocatorFilter struct {
	Search            string
	SubServiceID      uint64
	ClientID          *uint64
	CompanyPatrolOnly bool
	FilterID          *uint64

	Limit int
	// nil means no distance cutoff.
	MaxDistanceKM *float64
}

// FilterPreset is a named filter that can override limit and cutoff.
type FilterPreset struct {
	ID            uint64
	Name          string
	Limit         *int
	MaxDistanceKM *float64
}

// Candidate is a locator hit before enrichment.
type Candidate struct {
	Provider    Provider
	DistanceKM  float64
	Technicians []Technician
}

type ManagerChain struct {
	RegionalManager *string `json:"regionalManager,omitempty"`
	ZoneManager     *string `json:"zoneManager,omitempty"`
	NationalManager *string `json:"nationalManager,omitempty"`
}

// TechnicianStatus is a roster entry with its resolved work status.
// Available stays nil when no scheduled service date was supplied.
type TechnicianStatus struct {
	Technician
	ResolvedStatus  string
	Available       *bool
	InProgressCount *int
}

// CandidateResult is one ranked dispatch answer row.
type CandidateResult struct {
	Provider   Provider
	DistanceKM float64

	Legs              []RouteLeg
	TotalDistanceText *string

	Technicians []TechnicianStatus

	ExistingActivityID *uint64
	PreviouslyRejected *bool
	CaseCountOnDate    *int
	Managers           *ManagerChain
}

// Transaction is one payment row on a case, as supplied by the case tracker.
type Transaction struct {
	PaymentTypeID     uint64     `json:"paymentTypeId"`
	TransactionTypeID uint64     `json:"transactionTypeId"`
	PaymentStatusID   uint64     `json:"paymentStatusId"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
	RefundStatus      *string    `json:"refundStatus,omitempty"`
}

// CaseSnapshot is the read-only case state the SLA evaluator works from.
type CaseSnapshot struct {
	ID     uint64 `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`

	AgentAssignedAt    *time.Time `json:"agentAssignedAt,omitempty"`
	ProviderAcceptedAt *time.Time `json:"providerAcceptedAt,omitempty"`
	ActivityStatus     string     `json:"activityStatus"`

	NoPaymentRequired bool `json:"noPaymentRequired"`
	CashPayment       bool `json:"cashPayment"`

	Transactions []Transaction `json:"transactions"`
}

// SLACheckpoint is one externally supplied time-window record.
type SLACheckpoint struct {
	ConfigID   uint64     `json:"configId"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
	AchievedAt *time.Time `json:"achievedAt,omitempty"`
}

// SLAResult is the selected checkpoint with its human label.
type SLAResult struct {
	Checkpoint SLACheckpoint `json:"checkpoint"`
	Label      string        `json:"label"`
}
