// Package engine holds the two writers of the mission log: the approval
// gate and the execution controller. Everything else reads.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"missionline/internal/config"
	"missionline/internal/domain"
	"missionline/internal/eventlog"
	"missionline/internal/projector"
	"missionline/internal/resolver"
)

// Engine owns write access to the mission stream. Approve and Execute
// serialize their read-decide-append sections behind mu so two concurrent
// calls cannot both observe the same pre-transition status; the tool
// invocation inside Execute runs outside that critical section.
type Engine struct {
	Log       *eventlog.Store
	Projector projector.Projector
	Resolver  resolver.Resolver
	Config    *config.Config
	Logger    *zap.Logger
	Now       func() time.Time

	mu sync.Mutex
}

// New wires an engine over an opened event log store.
func New(log *eventlog.Store, res resolver.Resolver, cfg *config.Config, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Log:       log,
		Projector: projector.New(log, logger),
		Resolver:  res,
		Config:    cfg,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateMission appends the initial proposed record and returns the new
// mission's projection. Mission ids are never reused.
func (e *Engine) CreateMission(ctx context.Context, objective, source string, metadata domain.Metadata) (domain.MissionProjection, error) {
	if strings.TrimSpace(objective) == "" {
		return domain.MissionProjection{}, errors.New("objective is required")
	}
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	ts := e.timestamp()
	metadata["created_at"] = ts
	metadata["awaiting_approval"] = true
	rec := domain.MissionRecord{
		MissionID: uuid.New().String(),
		EventType: domain.EventCreation,
		Status:    domain.StatusProposed,
		Objective: objective,
		Source:    source,
		Metadata:  metadata,
		Timestamp: ts,
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.Log.Missions().Append(ctx, rec); err != nil {
		return domain.MissionProjection{}, &PersistenceError{Stream: eventlog.StreamMissions, Err: err}
	}
	return domain.MissionProjection{
		MissionID: rec.MissionID,
		Status:    domain.StatusProposed,
		Objective: objective,
		Source:    source,
		CreatedAt: ts,
		UpdatedAt: ts,
		Records:   1,
	}, nil
}

// AddPlan appends a plan_created record. Plans never change status and may
// be attached at any point before a terminal state.
func (e *Engine) AddPlan(ctx context.Context, missionID string, plan domain.Plan) (domain.MissionProjection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	proj, err := e.Projector.Project(ctx, missionID)
	if err != nil {
		return domain.MissionProjection{}, err
	}
	if proj.Status.Terminal() {
		return domain.MissionProjection{}, &InvalidTransitionError{MissionID: missionID, Status: proj.Status, Op: "plan"}
	}
	rec := domain.MissionRecord{
		MissionID: missionID,
		EventType: domain.EventPlanCreated,
		Metadata:  domain.Metadata{"plan": plan},
		Timestamp: e.timestamp(),
	}
	if err := e.Log.Missions().Append(ctx, rec); err != nil {
		return domain.MissionProjection{}, &PersistenceError{Stream: eventlog.StreamMissions, Err: err}
	}
	return e.Projector.Project(ctx, missionID)
}

// RecordSignal appends an entry to the revenue-signal stream. Signals are
// independent of the mission lifecycle and reuse the same append pattern.
func (e *Engine) RecordSignal(ctx context.Context, kind string, payload domain.Metadata) error {
	if strings.TrimSpace(kind) == "" {
		return errors.New("kind is required")
	}
	entry := domain.Metadata{
		"kind":      kind,
		"payload":   payload,
		"timestamp": e.timestamp(),
	}
	if err := e.Log.Stream(eventlog.StreamSignals).Append(ctx, entry); err != nil {
		return &PersistenceError{Stream: eventlog.StreamSignals, Err: err}
	}
	return nil
}
