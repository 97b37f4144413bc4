// Package whiteboard is the read-only query surface over the mission log.
// It reconstructs state through the same projector the gates use and holds
// no storage of its own, so it can never drift from the log.
package whiteboard

import (
	"context"

	"go.uber.org/zap"

	"missionline/internal/domain"
	"missionline/internal/eventlog"
	"missionline/internal/projector"
)

// View exposes mission projections. No mutation capability is exposed.
type View struct {
	projector projector.Projector
}

// New returns a view over the store's mission stream.
func New(store *eventlog.Store, logger *zap.Logger) View {
	return View{projector: projector.New(store, logger)}
}

// Get returns the current projection for one mission, or
// domain.ErrNotFound.
func (v View) Get(ctx context.Context, missionID string) (domain.MissionProjection, error) {
	return v.projector.Project(ctx, missionID)
}

// List returns a projection per mission, in order of first appearance in
// the log, optionally filtered by status.
func (v View) List(ctx context.Context, status domain.Status) ([]domain.MissionProjection, error) {
	all, err := v.projector.ProjectAll(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}
	var filtered []domain.MissionProjection
	for _, proj := range all {
		if proj.Status == status {
			filtered = append(filtered, proj)
		}
	}
	return filtered, nil
}
