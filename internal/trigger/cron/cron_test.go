package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewParsesExpression(t *testing.T) {
	c, err := New("*/10 * * * *", "", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	next := c.nextTick()
	if next.Minute()%10 != 0 {
		t.Fatalf("next tick %v is not on a ten minute boundary", next)
	}
	if !next.After(time.Now()) {
		t.Fatalf("next tick %v is not in the future", next)
	}
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	if _, err := New("not a schedule", "", nil); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if _, err := New("  ", "", nil); err == nil {
		t.Fatal("expected error for empty expression")
	}
}

func TestExtractLocationParsesTimezone(t *testing.T) {
	loc, err := extractLocation("UTC")
	if err != nil {
		t.Fatalf("extractLocation returned error: %v", err)
	}

	if loc != time.UTC {
		t.Fatalf("expected UTC, got %v", loc)
	}
}

func TestExtractLocationIgnoresEmpty(t *testing.T) {
	loc, err := extractLocation("")
	if err != nil {
		t.Fatalf("extractLocation returned error: %v", err)
	}

	if loc != nil {
		t.Fatalf("expected nil location, got %v", loc)
	}
}

func TestExtractLocationRejectsUnknown(t *testing.T) {
	if _, err := extractLocation("Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestFireCallsFunc(t *testing.T) {
	want := errors.New("boom")
	c, err := New("0 0 * * *", "UTC", func(context.Context) error { return want })
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := c.Fire(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Fire returned %v, want %v", err, want)
	}
}
