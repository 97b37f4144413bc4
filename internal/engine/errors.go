package engine

import (
	"fmt"

	"missionline/internal/domain"
)

// InvalidTransitionError reports an operation called out of order, e.g.
// approving an active mission or executing one still proposed.
type InvalidTransitionError struct {
	MissionID string
	Status    domain.Status
	Op        string
}

func (e *InvalidTransitionError) Error() string {
	switch e.Op {
	case "approve":
		return fmt.Sprintf("nothing to approve: mission %s is %s", e.MissionID, e.Status)
	case "execute":
		return fmt.Sprintf("mission %s not approved (status %s)", e.MissionID, e.Status)
	}
	return fmt.Sprintf("invalid %s on mission %s (status %s)", e.Op, e.MissionID, e.Status)
}

// ToolError reports a resolver or tool failure, including timeouts. The
// failure is recorded on the mission before this error surfaces.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("tool resolution failed: %v", e.Err)
	}
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// PersistenceError reports an append that could not be durably written. The
// operation it interrupted must be retried by the caller; the log itself is
// never left with a partial record.
type PersistenceError struct {
	Stream string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("append to %s stream failed: %v", e.Stream, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
