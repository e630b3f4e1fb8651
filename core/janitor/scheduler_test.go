package janitor

import (
	"context"
	"testing"
	"time"

	"incident-desk/config"
	"incident-desk/core/store"
	"incident-desk/core/store/storetest"
	"incident-desk/core/utils"
)

func TestRunOncePurgesExpired(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	u := storetest.CreateUser(t, db, "alice", "alice@example.com")
	sessions := store.NewSessionsStore(db)
	tokens := store.NewResetTokensStore(db)
	now := time.Now().UTC()

	for _, sess := range []*store.SessionRecord{
		{ID: "expired", UserID: u.ID, Username: u.Username, Role: "user", CSRFToken: "c", CreatedAt: now.Add(-2 * time.Hour), LastSeenAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{ID: "live", UserID: u.ID, Username: u.Username, Role: "user", CSRFToken: "c", CreatedAt: now, LastSeenAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		if err := sessions.SaveSession(ctx, sess); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}
	for _, tok := range []*store.ResetToken{
		{JTI: "stale", UserID: u.ID, ExpiresAt: now.Add(-time.Minute)},
		{JTI: "fresh", UserID: u.ID, ExpiresAt: now.Add(time.Hour)},
		{JTI: "spent", UserID: u.ID, ExpiresAt: now.Add(time.Hour)},
	} {
		if err := tokens.CreateResetToken(ctx, tok); err != nil {
			t.Fatalf("create token: %v", err)
		}
	}
	if err := tokens.ConsumeResetToken(ctx, "spent", now); err != nil {
		t.Fatalf("consume: %v", err)
	}

	j := NewScheduler(config.SchedulerConfig{Enabled: true}, sessions, tokens, utils.NewDiscardLogger())
	res, err := j.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.Sessions != 1 || res.ResetTokens != 2 {
		t.Fatalf("unexpected purge result: %+v", res)
	}
	if _, err := sessions.GetSession(ctx, "live"); err != nil {
		t.Fatalf("live session purged: %v", err)
	}
	if _, err := tokens.GetResetToken(ctx, "fresh"); err != nil {
		t.Fatalf("fresh token purged: %v", err)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	db := storetest.Open(t)
	j := NewScheduler(config.SchedulerConfig{Enabled: true, JanitorSpec: "every now and then"},
		store.NewSessionsStore(db), store.NewResetTokensStore(db), utils.NewDiscardLogger())
	if err := j.StartWithContext(context.Background()); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
}

func TestStartStop(t *testing.T) {
	db := storetest.Open(t)
	j := NewScheduler(config.SchedulerConfig{Enabled: true, JanitorSpec: "@every 1h"},
		store.NewSessionsStore(db), store.NewResetTokensStore(db), utils.NewDiscardLogger())
	if err := j.StartWithContext(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := j.StartWithContext(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := j.StopWithContext(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestDisabledSchedulerIsNoop(t *testing.T) {
	j := NewScheduler(config.SchedulerConfig{Enabled: false, JanitorSpec: "garbage"}, nil, nil, nil)
	if err := j.StartWithContext(context.Background()); err != nil {
		t.Fatalf("disabled start: %v", err)
	}
	if err := j.StopWithContext(context.Background()); err != nil {
		t.Fatalf("disabled stop: %v", err)
	}
}
