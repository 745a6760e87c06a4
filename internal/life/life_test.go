package life

import (
	"context"
	"math"
	"testing"
	"time"

	"math-game-service/internal/domain"
	"math-game-service/internal/infra/memory"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAdvanceRegeneratesWholeUnits(t *testing.T) {
	u := domain.User{ID: "u1", Life: 4, LastAdjusted: base}

	u = Advance(u, base.Add(25*time.Minute), DefaultUnit)
	if u.Life != 6 {
		t.Fatalf("expected life 6 after 25m, got %d", u.Life)
	}
	if math.Abs(u.RegenDebt-5) > 1e-9 {
		t.Fatalf("expected 5 leftover minutes, got %v", u.RegenDebt)
	}

	// 5 carried + 5 elapsed = one more unit, no leftover.
	u = Advance(u, base.Add(30*time.Minute), DefaultUnit)
	if u.Life != 7 || math.Abs(u.RegenDebt) > 1e-9 {
		t.Fatalf("expected life 7 with no leftover, got life=%d debt=%v", u.Life, u.RegenDebt)
	}
}

func TestAdvanceNeverExceedsCap(t *testing.T) {
	u := domain.User{ID: "u1", Life: 9, LastAdjusted: base}
	u = Advance(u, base.Add(24*time.Hour), DefaultUnit)
	if u.Life != MaxLife {
		t.Fatalf("expected cap %d, got %d", MaxLife, u.Life)
	}
	if u.RegenDebt != 0 {
		t.Fatalf("expected debt cleared at cap, got %v", u.RegenDebt)
	}
}

func TestAdvanceAtFullLifeOnlyMovesTimestamp(t *testing.T) {
	u := domain.User{ID: "u1", Life: MaxLife, RegenDebt: 3, LastAdjusted: base}
	now := base.Add(time.Hour)
	u = Advance(u, now, DefaultUnit)
	if u.Life != MaxLife || u.RegenDebt != 0 || !u.LastAdjusted.Equal(now) {
		t.Fatalf("unexpected state at cap: %+v", u)
	}
}

func TestAdvanceIgnoresBackwardClock(t *testing.T) {
	u := domain.User{ID: "u1", Life: 4, RegenDebt: 2, LastAdjusted: base}
	if got := Advance(u, base.Add(-time.Minute), DefaultUnit); got != u {
		t.Fatalf("expected no change on backward clock, got %+v", got)
	}
}

func TestBoostAndReferralBoost(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()
	now := base
	svc := NewServiceWithClock(store, DefaultUnit, func() time.Time { return now })

	store.Put(domain.User{ID: "u1", Life: 9, LastAdjusted: base})
	if life, err := svc.Boost(ctx, "u1"); err != nil || life != 10 {
		t.Fatalf("Boost = (%d, %v), want 10", life, err)
	}
	if life, _ := svc.Boost(ctx, "u1"); life != 10 {
		t.Fatalf("Boost past cap = %d, want 10", life)
	}

	store.Put(domain.User{ID: "u2", Life: 2, LastAdjusted: base})
	if life, _ := svc.ReferralBoost(ctx, "u2"); life != 7 {
		t.Fatalf("ReferralBoost from 2 = %d, want 7", life)
	}
	if life, _ := svc.ReferralBoost(ctx, "u2"); life != 10 {
		t.Fatalf("ReferralBoost from 7 = %d, want exactly 10", life)
	}
}

func TestPenalizeFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()
	now := base
	svc := NewServiceWithClock(store, DefaultUnit, func() time.Time { return now })

	store.Put(domain.User{ID: "u1", Life: 1, RegenDebt: 7, LastAdjusted: base.Add(-time.Hour)})
	if err := svc.Penalize(ctx, "u1"); err != nil {
		t.Fatalf("penalize: %v", err)
	}
	u, _ := store.User(ctx, "u1")
	if u.Life != 0 || u.RegenDebt != 0 || !u.LastAdjusted.Equal(now) {
		t.Fatalf("unexpected state after penalty: %+v", u)
	}

	if err := svc.Penalize(ctx, "u1"); err != nil {
		t.Fatalf("penalize at zero: %v", err)
	}
	u, _ = store.User(ctx, "u1")
	if u.Life != 0 {
		t.Fatalf("life went below zero: %d", u.Life)
	}
}

func TestLifeRecomputesOnRead(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()
	now := base.Add(35 * time.Minute)
	svc := NewServiceWithClock(store, DefaultUnit, func() time.Time { return now })

	store.Put(domain.User{ID: "u1", Life: 3, LastAdjusted: base})
	life, err := svc.Life(ctx, "u1")
	if err != nil || life != 6 {
		t.Fatalf("Life = (%d, %v), want 6", life, err)
	}

	// Stored state was updated, not just the returned value.
	u, _ := store.User(ctx, "u1")
	if u.Life != 6 || math.Abs(u.RegenDebt-5) > 1e-9 {
		t.Fatalf("stored state not advanced: %+v", u)
	}
}

func TestSweepAdvancesAllUsers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()
	now := base.Add(30 * time.Minute)
	svc := NewServiceWithClock(store, DefaultUnit, func() time.Time { return now })

	store.Put(domain.User{ID: "u1", Life: 2, LastAdjusted: base})
	store.Put(domain.User{ID: "u2", Life: MaxLife, LastAdjusted: base})

	sched := NewScheduler(svc, time.Minute)
	sched.Sweep(ctx)

	u1, _ := store.User(ctx, "u1")
	if u1.Life != 5 {
		t.Fatalf("expected u1 life 5 after sweep, got %d", u1.Life)
	}
	u2, _ := store.User(ctx, "u2")
	if u2.Life != MaxLife || !u2.LastAdjusted.Equal(now) {
		t.Fatalf("expected u2 untouched except timestamp, got %+v", u2)
	}

	// A second sweep at the same instant is a no-op.
	sched.Sweep(ctx)
	again, _ := store.User(ctx, "u1")
	if again != u1 {
		t.Fatalf("sweep not idempotent: %+v vs %+v", again, u1)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	store := memory.NewUserStore()
	svc := NewService(store, DefaultUnit)
	sched := NewScheduler(svc, 10*time.Millisecond)

	sched.Start()
	time.Sleep(30 * time.Millisecond)
	sched.Stop() // must not hang or panic
}
