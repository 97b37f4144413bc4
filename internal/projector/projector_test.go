package projector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"missionline/internal/domain"
	"missionline/internal/eventlog"
)

func rec(id string, et domain.EventType, status domain.Status, ts string) domain.MissionRecord {
	return domain.MissionRecord{MissionID: id, EventType: et, Status: status, Timestamp: ts}
}

func TestFoldNotFound(t *testing.T) {
	p := Projector{}
	_, err := p.Fold("missing", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFoldHappyPath(t *testing.T) {
	p := Projector{}
	records := []domain.MissionRecord{
		{MissionID: "m1", EventType: domain.EventCreation, Status: domain.StatusProposed, Objective: "echo: hi", Source: "cli", Timestamp: "t1"},
		rec("m1", domain.EventStatusUpdate, domain.StatusApproved, "t2"),
		rec("m1", domain.EventStatusUpdate, domain.StatusActive, "t3"),
		{MissionID: "m1", EventType: domain.EventExecutionResult, Status: domain.StatusCompleted, Timestamp: "t4",
			Metadata: domain.Metadata{"tool_used": "echo", "result_summary": "hi", "result": map[string]any{"message": "hi"}}},
	}
	proj, err := p.Fold("m1", records)
	if err != nil {
		t.Fatal(err)
	}
	if proj.Status != domain.StatusCompleted {
		t.Errorf("status %q", proj.Status)
	}
	if proj.Objective != "echo: hi" || proj.Source != "cli" {
		t.Errorf("creation fields not seeded: %+v", proj)
	}
	if proj.CreatedAt != "t1" || proj.UpdatedAt != "t4" {
		t.Errorf("timestamps: created %q updated %q", proj.CreatedAt, proj.UpdatedAt)
	}
	if proj.Result == nil || proj.Result.ToolUsed != "echo" || proj.Result.ResultSummary != "hi" {
		t.Errorf("result %+v", proj.Result)
	}
	if proj.Records != 4 {
		t.Errorf("records %d", proj.Records)
	}
}

func TestFoldIsDeterministic(t *testing.T) {
	p := Projector{}
	records := []domain.MissionRecord{
		{MissionID: "m1", Status: domain.StatusProposed, Objective: "x", Timestamp: "t1"},
		rec("m1", domain.EventStatusUpdate, domain.StatusApproved, "t2"),
	}
	a, err := p.Fold("m1", records)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Fold("m1", records)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != b.Status || a.UpdatedAt != b.UpdatedAt || a.Records != b.Records {
		t.Errorf("fold not deterministic: %+v vs %+v", a, b)
	}
}

func TestFoldLegacyCreationRecord(t *testing.T) {
	// Old logs: the first record carries neither event_type nor status.
	p := Projector{}
	records := []domain.MissionRecord{
		{MissionID: "m1", Objective: "do the thing", Timestamp: "t1"},
	}
	proj, err := p.Fold("m1", records)
	if err != nil {
		t.Fatal(err)
	}
	if proj.Status != domain.StatusProposed {
		t.Errorf("status %q, want proposed", proj.Status)
	}
}

func TestFoldCreatedAtMetadataOverride(t *testing.T) {
	p := Projector{}
	records := []domain.MissionRecord{
		{MissionID: "m1", Status: domain.StatusProposed, Timestamp: "t9",
			Metadata: domain.Metadata{"created_at": "t0"}},
	}
	proj, err := p.Fold("m1", records)
	if err != nil {
		t.Fatal(err)
	}
	if proj.CreatedAt != "t0" {
		t.Errorf("created_at %q, want t0", proj.CreatedAt)
	}
}

func TestFoldSkipsIllegalTransition(t *testing.T) {
	p := Projector{}
	records := []domain.MissionRecord{
		{MissionID: "m1", Status: domain.StatusProposed, Timestamp: "t1"},
		rec("m1", domain.EventStatusUpdate, domain.StatusCompleted, "t2"), // illegal from proposed
		rec("m1", domain.EventStatusUpdate, domain.StatusApproved, "t3"),
	}
	proj, err := p.Fold("m1", records)
	if err != nil {
		t.Fatal(err)
	}
	if proj.Status != domain.StatusApproved {
		t.Errorf("status %q, want approved (illegal jump skipped)", proj.Status)
	}
	if proj.UpdatedAt != "t3" {
		t.Errorf("updated_at %q", proj.UpdatedAt)
	}
}

func TestFoldRepeatedStatusIsNoop(t *testing.T) {
	p := Projector{}
	records := []domain.MissionRecord{
		{MissionID: "m1", Status: domain.StatusProposed, Timestamp: "t1"},
		rec("m1", domain.EventStatusUpdate, domain.StatusApproved, "t2"),
		rec("m1", domain.EventStatusUpdate, domain.StatusApproved, "t3"),
	}
	proj, err := p.Fold("m1", records)
	if err != nil {
		t.Fatal(err)
	}
	if proj.Status != domain.StatusApproved {
		t.Errorf("status %q", proj.Status)
	}
	if proj.UpdatedAt != "t2" {
		t.Errorf("updated_at %q, restated status must not bump it", proj.UpdatedAt)
	}
}

func TestFoldMergesPlan(t *testing.T) {
	p := Projector{}
	records := []domain.MissionRecord{
		{MissionID: "m1", Status: domain.StatusProposed, Timestamp: "t1"},
		{MissionID: "m1", EventType: domain.EventPlanCreated, Timestamp: "t2",
			Metadata: domain.Metadata{"plan": map[string]any{"summary": "two steps", "steps": []any{"a", "b"}}}},
	}
	proj, err := p.Fold("m1", records)
	if err != nil {
		t.Fatal(err)
	}
	if proj.Status != domain.StatusProposed {
		t.Errorf("plan must not change status, got %q", proj.Status)
	}
	if proj.Plan == nil || proj.Plan.Summary != "two steps" || len(proj.Plan.Steps) != 2 {
		t.Errorf("plan %+v", proj.Plan)
	}
}

func TestProjectAllOrderAndLenientRead(t *testing.T) {
	dir := t.TempDir()
	store, err := eventlog.Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	stream := store.Missions()
	for _, r := range []domain.MissionRecord{
		{MissionID: "b", Status: domain.StatusProposed, Objective: "second", Timestamp: "t1"},
		{MissionID: "a", Status: domain.StatusProposed, Objective: "first", Timestamp: "t2"},
		{MissionID: "b", EventType: domain.EventStatusUpdate, Status: domain.StatusApproved, Timestamp: "t3"},
	} {
		if err := stream.Append(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	// Corruption in the middle must not hide later records.
	f, err := os.OpenFile(filepath.Join(dir, "missions.jsonl"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("garbage line\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := stream.Append(ctx, domain.MissionRecord{MissionID: "b", EventType: domain.EventStatusUpdate, Status: domain.StatusActive, Timestamp: "t4"}); err != nil {
		t.Fatal(err)
	}

	p := New(store, nil)
	projections, err := p.ProjectAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(projections) != 2 {
		t.Fatalf("expected 2 projections, got %d", len(projections))
	}
	if projections[0].MissionID != "b" || projections[1].MissionID != "a" {
		t.Errorf("order: %s, %s", projections[0].MissionID, projections[1].MissionID)
	}
	if projections[0].Status != domain.StatusActive {
		t.Errorf("mission b status %q", projections[0].Status)
	}
}

func TestProjectUnknownMission(t *testing.T) {
	store, err := eventlog.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	p := New(store, nil)
	_, err = p.Project(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
