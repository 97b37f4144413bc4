package repo

import (
	"context"
	"errors"
	"testing"

	"missionline/internal/db"
	"missionline/internal/domain"
	"missionline/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func TestAPIKeyLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	key := domain.APIKey{
		ID:      "k1",
		ActorID: "alice",
		Name:    "laptop",
		KeyHash: HashAPIKey("secret-value"),
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey("secret-value"))
	if err != nil {
		t.Fatal(err)
	}
	if got.ActorID != "alice" || got.Name != "laptop" {
		t.Errorf("stored key %+v", got)
	}
	if got.CreatedAt == "" {
		t.Error("created_at not defaulted")
	}

	keys, err := r.ListAPIKeys(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}

	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("secret-value")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteUnknownKey(t *testing.T) {
	r := newTestRepo(t)
	if err := r.DeleteAPIKey(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHashIsStableAndTrimmed(t *testing.T) {
	if HashAPIKey("abc") != HashAPIKey(" abc \n") {
		t.Error("hash must ignore surrounding whitespace")
	}
	if HashAPIKey("abc") == HashAPIKey("abd") {
		t.Error("distinct keys must not collide")
	}
}
