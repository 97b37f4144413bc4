// Package projector folds mission records into their current-state view.
// The fold is pure and defensive: bad history is logged and skipped, never
// raised, so one ill-ordered record cannot hide a mission.
package projector

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"missionline/internal/domain"
	"missionline/internal/eventlog"
)

// Projector computes MissionProjections from a mission stream.
type Projector struct {
	Stream *eventlog.Stream
	Logger *zap.Logger
}

// New returns a projector over the store's mission stream.
func New(store *eventlog.Store, logger *zap.Logger) Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Projector{Stream: store.Missions(), Logger: logger}
}

// Project reads and folds the records for one mission. It returns
// domain.ErrNotFound when the stream holds no records for the id.
func (p Projector) Project(ctx context.Context, missionID string) (domain.MissionProjection, error) {
	records, err := p.Stream.ReadFor(ctx, missionID)
	if err != nil {
		return domain.MissionProjection{}, err
	}
	return p.Fold(missionID, records)
}

// ProjectAll folds the whole stream and returns one projection per mission,
// in order of first appearance.
func (p Projector) ProjectAll(ctx context.Context) ([]domain.MissionProjection, error) {
	records, err := p.Stream.ReadRecords(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]domain.MissionRecord)
	var order []string
	for _, rec := range records {
		if _, ok := grouped[rec.MissionID]; !ok {
			order = append(order, rec.MissionID)
		}
		grouped[rec.MissionID] = append(grouped[rec.MissionID], rec)
	}
	projections := make([]domain.MissionProjection, 0, len(order))
	for _, id := range order {
		proj, err := p.Fold(id, grouped[id])
		if err != nil {
			continue
		}
		projections = append(projections, proj)
	}
	return projections, nil
}

// Fold replays records in append order. The first record seeds the
// projection and is treated as the creation regardless of its event type;
// later records apply only when their status is a legal forward transition.
// plan_created records merge plan fields without touching status. Replaying
// the same records twice yields an identical projection.
func (p Projector) Fold(missionID string, records []domain.MissionRecord) (domain.MissionProjection, error) {
	if len(records) == 0 {
		return domain.MissionProjection{}, domain.ErrNotFound
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	first := records[0]
	proj := domain.MissionProjection{
		MissionID: missionID,
		Status:    first.Status,
		Objective: first.Objective,
		Source:    first.Source,
		CreatedAt: first.Timestamp,
		UpdatedAt: first.Timestamp,
		Records:   len(records),
	}
	if proj.Status == "" {
		proj.Status = domain.StatusProposed
	}
	if created, ok := stringField(first.Metadata, "created_at"); ok {
		proj.CreatedAt = created
	}

	for _, rec := range records[1:] {
		if rec.EventType == domain.EventPlanCreated {
			mergePlan(&proj, rec)
			proj.UpdatedAt = rec.Timestamp
			continue
		}
		if rec.Status == "" || rec.Status == proj.Status {
			continue
		}
		if !domain.CanTransition(proj.Status, rec.Status) {
			logger.Warn("ignoring illegal status transition",
				zap.String("mission_id", missionID),
				zap.String("from", string(proj.Status)),
				zap.String("to", string(rec.Status)))
			continue
		}
		proj.Status = rec.Status
		proj.UpdatedAt = rec.Timestamp
		if rec.Status.Terminal() || rec.EventType == domain.EventExecutionResult {
			mergeResult(&proj, rec)
		}
	}
	return proj, nil
}

func mergePlan(proj *domain.MissionProjection, rec domain.MissionRecord) {
	plan := &domain.Plan{}
	if raw, ok := rec.Metadata["plan"]; ok {
		if data, err := json.Marshal(raw); err == nil {
			_ = json.Unmarshal(data, plan)
		}
	}
	if summary, ok := stringField(rec.Metadata, "summary"); ok && plan.Summary == "" {
		plan.Summary = summary
	}
	proj.Plan = plan
}

func mergeResult(proj *domain.MissionProjection, rec domain.MissionRecord) {
	res := &domain.ExecutionResult{}
	if tool, ok := stringField(rec.Metadata, "tool_used"); ok {
		res.ToolUsed = tool
	}
	if summary, ok := stringField(rec.Metadata, "result_summary"); ok {
		res.ResultSummary = summary
	}
	if errMsg, ok := stringField(rec.Metadata, "error"); ok {
		res.Error = errMsg
	}
	if payload, ok := rec.Metadata["result"].(map[string]any); ok {
		res.Payload = payload
	}
	proj.Result = res
}

func stringField(m domain.Metadata, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok && s != ""
}
