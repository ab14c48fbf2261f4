package messages

import "time"

// ProviderLocation is consumed from the patrol vehicle telemetry topic and
// applied to the provider store as the "last known" coordinate.
type ProviderLocation struct {
	ProviderID uint64    `json:"provider_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	OnShift    bool      `json:"on_shift"`
	ReportedAt time.Time `json:"reported_at"`
}

// DispatchSearched is a fire-and-forget audit event published after every
// candidate search.
type DispatchSearched struct {
	RequestID    string    `json:"request_id"`
	CaseID       uint64    `json:"case_id"`
	SubServiceID uint64    `json:"sub_service_id"`
	AnchorLat    float64   `json:"anchor_lat"`
	AnchorLng    float64   `json:"anchor_lng"`
	Candidates   int       `json:"candidates"`
	SearchedAt   time.Time `json:"searched_at"`
}

// SLACheckpointEvent is published by the SLA worker when a case's current
// checkpoint is (re)evaluated.
type SLACheckpointEvent struct {
	CaseID       uint64    `json:"case_id"`
	CheckpointID uint64    `json:"checkpoint_id,omitempty"`
	Label        string    `json:"label,omitempty"`
	Status       string    `json:"status,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
	Error        *string   `json:"error,omitempty"`
}
