package resolver

import (
	"context"
	"errors"
	"testing"

	"missionline/internal/domain"
)

func TestResolveCalcPrefix(t *testing.T) {
	r := NewRegistry()
	res, err := r.Resolve(context.Background(), "calc: 6 * 7")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tool != "calc" {
		t.Errorf("tool %q", res.Tool)
	}
	if res.Confidence < 0.9 {
		t.Errorf("confidence %v", res.Confidence)
	}
	payload, err := res.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if payload["value"] != 42.0 {
		t.Errorf("value %v", payload["value"])
	}
}

func TestResolveBareExpression(t *testing.T) {
	r := NewRegistry()
	res, err := r.Resolve(context.Background(), "10 / 4")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tool != "calc" {
		t.Errorf("tool %q", res.Tool)
	}
	if res.Confidence >= 0.95 {
		t.Errorf("bare match should be lower confidence, got %v", res.Confidence)
	}
	payload, err := res.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if payload["value"] != 2.5 {
		t.Errorf("value %v", payload["value"])
	}
}

func TestResolveDivisionByZero(t *testing.T) {
	r := NewRegistry()
	res, err := r.Resolve(context.Background(), "calc: 1 / 0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.Run(context.Background()); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestResolveEcho(t *testing.T) {
	r := NewRegistry()
	res, err := r.Resolve(context.Background(), "echo: hello world")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tool != "echo" {
		t.Errorf("tool %q", res.Tool)
	}
	payload, err := res.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if payload["message"] != "hello world" {
		t.Errorf("message %v", payload["message"])
	}
}

func TestResolveNoTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(context.Background(), "write a novel")
	if !errors.Is(err, ErrNoTool) {
		t.Fatalf("expected ErrNoTool, got %v", err)
	}
}

func TestRegisterOverrides(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", func(objective string) (float64, func(context.Context) (domain.Metadata, error)) {
		return 0, nil
	})
	_, err := r.Resolve(context.Background(), "echo: hi")
	if !errors.Is(err, ErrNoTool) {
		t.Fatalf("replaced matcher should not match, got %v", err)
	}
}
