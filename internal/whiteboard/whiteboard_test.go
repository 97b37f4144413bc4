package whiteboard

import (
	"context"
	"errors"
	"testing"

	"missionline/internal/domain"
	"missionline/internal/eventlog"
)

func seedStore(t *testing.T) *eventlog.Store {
	t.Helper()
	store, err := eventlog.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	stream := store.Missions()
	records := []domain.MissionRecord{
		{MissionID: "m1", Status: domain.StatusProposed, Objective: "echo: one", Timestamp: "t1"},
		{MissionID: "m2", Status: domain.StatusProposed, Objective: "echo: two", Timestamp: "t2"},
		{MissionID: "m1", EventType: domain.EventStatusUpdate, Status: domain.StatusApproved, Timestamp: "t3"},
	}
	for _, rec := range records {
		if err := stream.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestGet(t *testing.T) {
	v := New(seedStore(t), nil)
	proj, err := v.Get(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if proj.Status != domain.StatusApproved {
		t.Errorf("status %q", proj.Status)
	}
}

func TestGetUnknown(t *testing.T) {
	v := New(seedStore(t), nil)
	_, err := v.Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAll(t *testing.T) {
	v := New(seedStore(t), nil)
	items, err := v.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 missions, got %d", len(items))
	}
}

func TestListFiltered(t *testing.T) {
	v := New(seedStore(t), nil)
	items, err := v.List(context.Background(), domain.StatusApproved)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].MissionID != "m1" {
		t.Fatalf("filtered list %+v", items)
	}
}
