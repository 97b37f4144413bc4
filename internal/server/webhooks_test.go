package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"missionline/internal/config"
	"missionline/internal/domain"
	"missionline/internal/eventlog"
)

func TestDispatcherCursorSkipsHistoryNotNewRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := eventlog.Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	stream := store.Missions()

	// History: two decodable records with a malformed line between them. The
	// startup cursor must count records, not raw lines.
	if err := stream.Append(ctx, domain.MissionRecord{MissionID: "m1", Status: domain.StatusProposed, Timestamp: "t1"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "missions.jsonl"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{broken\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := stream.Append(ctx, domain.MissionRecord{MissionID: "m1", EventType: domain.EventStatusUpdate, Status: domain.StatusApproved, Timestamp: "t2"}); err != nil {
		t.Fatal(err)
	}

	var delivered atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
	}))
	defer target.Close()

	hooks := []config.WebhookConfig{{URL: target.URL}}
	d := newWebhookDispatcher(hooks, stream, zap.NewNop())
	if d.cursor != 2 {
		t.Fatalf("startup cursor %d, want 2 decoded records", d.cursor)
	}

	d.poll()
	if got := delivered.Load(); got != 0 {
		t.Fatalf("history delivered %d records, want 0", got)
	}

	if err := stream.Append(ctx, domain.MissionRecord{MissionID: "m1", EventType: domain.EventStatusUpdate, Status: domain.StatusActive, Timestamp: "t3"}); err != nil {
		t.Fatal(err)
	}
	d.poll()
	if got := delivered.Load(); got != 1 {
		t.Fatalf("delivered %d new records, want exactly 1", got)
	}
}

func TestDispatcherStatusFilter(t *testing.T) {
	store, err := eventlog.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	stream := store.Missions()

	var delivered atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
	}))
	defer target.Close()

	hooks := []config.WebhookConfig{{URL: target.URL, Statuses: []string{"completed", "failed"}}}
	d := newWebhookDispatcher(hooks, stream, zap.NewNop())

	for _, rec := range []domain.MissionRecord{
		{MissionID: "m1", Status: domain.StatusProposed, Timestamp: "t1"},
		{MissionID: "m1", EventType: domain.EventStatusUpdate, Status: domain.StatusApproved, Timestamp: "t2"},
		{MissionID: "m1", EventType: domain.EventStatusUpdate, Status: domain.StatusActive, Timestamp: "t3"},
		{MissionID: "m1", EventType: domain.EventExecutionResult, Status: domain.StatusCompleted, Timestamp: "t4"},
	} {
		if err := stream.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	d.poll()
	if got := delivered.Load(); got != 1 {
		t.Fatalf("delivered %d records, want only the completed one", got)
	}
}
