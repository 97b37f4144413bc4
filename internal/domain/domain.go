package domain

import (
	"encoding/json"
	"errors"
)

// Status is the lifecycle state of a mission. Completed and failed are
// terminal; no record may move a mission backwards.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusApproved  Status = "approved"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// EventType tags a mission record. Legacy logs omit the field on creation
// records; the decoder maps absence to EventCreation so downstream code never
// sees an empty tag.
type EventType string

const (
	EventCreation        EventType = "creation"
	EventStatusUpdate    EventType = "status_update"
	EventPlanCreated     EventType = "plan_created"
	EventExecutionResult EventType = "execution_result"
)

// ErrNotFound is returned when no record exists for a mission id.
var ErrNotFound = errors.New("mission not found")

// Metadata is the open key/value payload carried by a record.
type Metadata map[string]any

// MissionRecord is one immutable entry in a mission stream.
type MissionRecord struct {
	MissionID string    `json:"mission_id"`
	EventType EventType `json:"event_type"`
	Status    Status    `json:"status,omitempty"`
	Objective string    `json:"objective,omitempty"`
	Source    string    `json:"source,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Timestamp string    `json:"timestamp" format:"date-time"`
}

// UnmarshalJSON keeps the legacy convention readable: a record without an
// event_type is an initial creation record.
func (r *MissionRecord) UnmarshalJSON(data []byte) error {
	type alias MissionRecord
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.EventType == "" {
		a.EventType = EventCreation
	}
	*r = MissionRecord(a)
	return nil
}

// Plan is the optional plan payload merged into a projection by a
// plan_created record.
type Plan struct {
	Summary string   `json:"summary,omitempty"`
	Steps   []string `json:"steps,omitempty"`
}

// ExecutionResult is the terminal outcome captured on a mission.
type ExecutionResult struct {
	ToolUsed      string   `json:"tool_used,omitempty"`
	ResultSummary string   `json:"result_summary,omitempty"`
	Payload       Metadata `json:"payload,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// MissionProjection is the derived current view of one mission. It is
// computed by folding the mission's records in append order and is never
// stored.
type MissionProjection struct {
	MissionID string           `json:"mission_id"`
	Status    Status           `json:"status" enum:"proposed,approved,active,completed,failed"`
	Objective string           `json:"objective"`
	Source    string           `json:"source,omitempty"`
	Plan      *Plan            `json:"plan,omitempty"`
	Result    *ExecutionResult `json:"execution_result,omitempty"`
	CreatedAt string           `json:"created_at" format:"date-time"`
	UpdatedAt string           `json:"updated_at" format:"date-time"`
	Records   int              `json:"records"`
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether to is a legal forward step from from.
// Restating the current status is not a transition.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusProposed:
		return to == StatusApproved
	case StatusApproved:
		return to == StatusActive
	case StatusActive:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// APIKey is a hashed credential for the admin API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
