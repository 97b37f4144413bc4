package engine

import (
	"context"

	"missionline/internal/domain"
	"missionline/internal/eventlog"
)

// ApproveResult is the outcome of an approval request.
type ApproveResult struct {
	MissionID       string        `json:"mission_id"`
	Status          domain.Status `json:"status"`
	AlreadyApproved bool          `json:"already_approved,omitempty"`
}

// Approve enforces the single legal proposed→approved transition.
//
// Approval is exactly idempotent: the first call on a proposed mission
// appends one status_update record; any later call on an approved mission
// appends nothing and reports success with the existing status. A mission in
// any other state (or an unknown id) is a structured failure with zero
// writes.
func (e *Engine) Approve(ctx context.Context, missionID string) (ApproveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	proj, err := e.Projector.Project(ctx, missionID)
	if err != nil {
		return ApproveResult{}, err
	}
	switch proj.Status {
	case domain.StatusProposed:
	case domain.StatusApproved:
		return ApproveResult{MissionID: missionID, Status: domain.StatusApproved, AlreadyApproved: true}, nil
	default:
		return ApproveResult{}, &InvalidTransitionError{MissionID: missionID, Status: proj.Status, Op: "approve"}
	}

	rec := domain.MissionRecord{
		MissionID: missionID,
		EventType: domain.EventStatusUpdate,
		Status:    domain.StatusApproved,
		Metadata:  domain.Metadata{"awaiting_approval": false},
		Timestamp: e.timestamp(),
	}
	if err := e.Log.Missions().Append(ctx, rec); err != nil {
		return ApproveResult{}, &PersistenceError{Stream: eventlog.StreamMissions, Err: err}
	}
	return ApproveResult{MissionID: missionID, Status: domain.StatusApproved}, nil
}
