package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"missionline/internal/domain"
	"missionline/internal/eventlog"
)

// ExecuteResult is the outcome of an execution request. Status carries the
// mission's state after the call; Error is non-empty when the tool failed
// and a failed record was written.
type ExecuteResult struct {
	MissionID      string        `json:"mission_id"`
	Status         domain.Status `json:"status"`
	ToolUsed       string        `json:"tool_used,omitempty"`
	ResultSummary  string        `json:"result_summary,omitempty"`
	Error          string        `json:"error,omitempty"`
	AlreadyRunning bool          `json:"already_running,omitempty"`
	AlreadyDone    bool          `json:"already_done,omitempty"`
}

// Execute drives at-most-one execution of an approved mission.
//
// The active record is appended before any work so a crash mid-execution
// leaves an observable non-terminal state. The tool runs outside the intent
// lock under the configured timeout; success appends completed, every other
// outcome (no tool, low confidence, error, timeout, panic) appends failed
// with an error field. The terminal write is retried once on persistence
// failure; a mission must never dangle at active without an explanation.
func (e *Engine) Execute(ctx context.Context, missionID string) (ExecuteResult, error) {
	e.mu.Lock()
	proj, err := e.Projector.Project(ctx, missionID)
	if err != nil {
		e.mu.Unlock()
		return ExecuteResult{}, err
	}
	switch proj.Status {
	case domain.StatusApproved:
	case domain.StatusActive:
		e.mu.Unlock()
		return ExecuteResult{MissionID: missionID, Status: domain.StatusActive, AlreadyRunning: true}, nil
	case domain.StatusCompleted, domain.StatusFailed:
		e.mu.Unlock()
		res := ExecuteResult{MissionID: missionID, Status: proj.Status, AlreadyDone: true}
		if proj.Result != nil {
			res.ToolUsed = proj.Result.ToolUsed
			res.ResultSummary = proj.Result.ResultSummary
			res.Error = proj.Result.Error
		}
		return res, nil
	default:
		e.mu.Unlock()
		return ExecuteResult{}, &InvalidTransitionError{MissionID: missionID, Status: proj.Status, Op: "execute"}
	}

	active := domain.MissionRecord{
		MissionID: missionID,
		EventType: domain.EventStatusUpdate,
		Status:    domain.StatusActive,
		Timestamp: e.timestamp(),
	}
	if err := e.Log.Missions().Append(ctx, active); err != nil {
		e.mu.Unlock()
		return ExecuteResult{}, &PersistenceError{Stream: eventlog.StreamMissions, Err: err}
	}
	e.mu.Unlock()

	tool, payload, runErr := e.runTool(ctx, proj.Objective)

	result := ExecuteResult{MissionID: missionID, ToolUsed: tool}
	terminal := domain.MissionRecord{
		MissionID: missionID,
		EventType: domain.EventExecutionResult,
		Timestamp: e.timestamp(),
	}
	if runErr == nil {
		summary := summarize(payload)
		result.Status = domain.StatusCompleted
		result.ResultSummary = summary
		terminal.Status = domain.StatusCompleted
		terminal.Metadata = domain.Metadata{
			"tool_used":      tool,
			"result_summary": summary,
			"result":         map[string]any(payload),
		}
	} else {
		result.Status = domain.StatusFailed
		result.Error = runErr.Error()
		terminal.Status = domain.StatusFailed
		terminal.Metadata = domain.Metadata{"error": runErr.Error()}
		if tool != "" {
			terminal.Metadata["tool_used"] = tool
		}
	}

	if err := e.appendTerminal(ctx, terminal); err != nil {
		return result, err
	}
	if runErr == nil {
		e.recordArtifact(ctx, missionID, tool, payload)
	}
	return result, nil
}

// runTool resolves and invokes the tool for an objective. Any failure mode
// collapses to an error the caller records as the mission's terminal state.
func (e *Engine) runTool(ctx context.Context, objective string) (string, domain.Metadata, error) {
	res, err := e.Resolver.Resolve(ctx, objective)
	if err != nil {
		return "", nil, &ToolError{Err: err}
	}
	if res.Confidence < e.Config.Execution.MinConfidence {
		return res.Tool, nil, &ToolError{
			Tool: res.Tool,
			Err:  fmt.Errorf("confidence %.2f below threshold %.2f", res.Confidence, e.Config.Execution.MinConfidence),
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Config.ExecutionTimeout())
	defer cancel()

	type outcome struct {
		payload domain.Metadata
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panic: %v", r)}
			}
		}()
		payload, err := res.Run(runCtx)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return res.Tool, nil, &ToolError{Tool: res.Tool, Err: out.err}
		}
		return res.Tool, out.payload, nil
	case <-runCtx.Done():
		return res.Tool, nil, &ToolError{Tool: res.Tool, Err: runCtx.Err()}
	}
}

// appendTerminal writes the completed/failed record, retrying once. Leaving
// a mission stuck at active with no terminal record is the single worst
// outcome here, so the retry ignores caller cancellation.
func (e *Engine) appendTerminal(ctx context.Context, rec domain.MissionRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.Log.Missions().Append(ctx, rec)
	if err == nil {
		return nil
	}
	e.Logger.Warn("terminal record append failed; retrying",
		zap.String("mission_id", rec.MissionID),
		zap.Error(err))
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if retryErr := e.Log.Missions().Append(ctx, rec); retryErr == nil {
		return nil
	}
	return &PersistenceError{Stream: eventlog.StreamMissions, Err: err}
}

// recordArtifact mirrors a completed execution's payload onto the artifact
// stream. Artifact writes are best effort and never fail the execution.
func (e *Engine) recordArtifact(ctx context.Context, missionID, tool string, payload domain.Metadata) {
	entry := domain.Metadata{
		"mission_id": missionID,
		"tool":       tool,
		"result":     map[string]any(payload),
		"timestamp":  e.timestamp(),
	}
	if err := e.Log.Stream(eventlog.StreamArtifacts).Append(ctx, entry); err != nil {
		e.Logger.Warn("artifact append failed",
			zap.String("mission_id", missionID),
			zap.Error(err))
	}
}

func summarize(payload domain.Metadata) string {
	if payload == nil {
		return "completed"
	}
	if v, ok := payload["value"]; ok {
		return fmt.Sprintf("value=%v", v)
	}
	if msg, ok := payload["message"].(string); ok {
		return msg
	}
	return fmt.Sprintf("%d result field(s)", len(payload))
}

// IsNotFound reports whether err is the unknown-mission error.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
