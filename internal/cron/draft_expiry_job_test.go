package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/stockflow-backend/pkg/logger"
)

type fakeDraftExpirer struct {
	cutoff time.Time
	limit  int
	err    error
}

func (f *fakeDraftExpirer) ExpireStaleDrafts(_ context.Context, cutoff time.Time, limit int) (int, error) {
	f.cutoff = cutoff
	f.limit = limit
	return 3, f.err
}

func TestDraftExpiryJobUsesTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expirer := &fakeDraftExpirer{}
	jobIface, err := NewDraftExpiryJob(DraftExpiryJobParams{Logger: logger.Nop(), Orders: expirer, TTLDays: 5})
	if err != nil {
		t.Fatalf("NewDraftExpiryJob: %v", err)
	}
	job := jobIface.(*draftExpiryJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-5 * 24 * time.Hour); !expirer.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, expirer.cutoff)
	}
	if expirer.limit != draftExpiryBatch {
		t.Fatalf("expected default batch %d, got %d", draftExpiryBatch, expirer.limit)
	}
	if job.Name() != "stale-draft-expiry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestDraftExpiryJobPropagatesError(t *testing.T) {
	expirer := &fakeDraftExpirer{err: errors.New("expire SO-001000: db gone")}
	job, err := NewDraftExpiryJob(DraftExpiryJobParams{Logger: logger.Nop(), Orders: expirer})
	if err != nil {
		t.Fatalf("NewDraftExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewDraftExpiryJobValidation(t *testing.T) {
	if _, err := NewDraftExpiryJob(DraftExpiryJobParams{Orders: &fakeDraftExpirer{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewDraftExpiryJob(DraftExpiryJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected orders error")
	}
}
