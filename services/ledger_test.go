package services

import (
	"errors"
	"sync"
	"testing"
)

func TestXPCurveWorkedExamples(t *testing.T) {
	cases := []struct {
		level int
		step  int64
	}{
		{1, 100}, {9, 100}, {10, 100},
		{11, 200}, {20, 200},
		{21, 300},
		{100, 1000},
	}
	for _, c := range cases {
		if got := XPForLevel(c.level); got != c.step {
			t.Errorf("XPForLevel(%d) = %d, want %d", c.level, got, c.step)
		}
	}

	if got := TotalXPForLevel(10); got != 1000 {
		t.Fatalf("TotalXPForLevel(10) = %d, want 1000", got)
	}
	if got := TotalXPForLevel(20); got != 3000 {
		t.Fatalf("TotalXPForLevel(20) = %d, want 3000", got)
	}
}

func TestLevelFromXPBoundaries(t *testing.T) {
	cases := []struct {
		xp    int64
		level int
	}{
		{-5, 1},
		{0, 1},
		{199, 1},
		{200, 2},
		{999, 9},
		{1000, 10},
		{1199, 10},
		{1200, 11},
	}
	for _, c := range cases {
		if got := LevelFromXP(c.xp); got != c.level {
			t.Errorf("LevelFromXP(%d) = %d, want %d", c.xp, got, c.level)
		}
	}
}

func TestLevelFromXPMonotonic(t *testing.T) {
	prev := LevelFromXP(0)
	for xp := int64(1); xp <= 5000; xp += 37 {
		level := LevelFromXP(xp)
		if level < prev {
			t.Fatalf("level curve regressed at xp=%d: %d -> %d", xp, prev, level)
		}
		prev = level
	}
}

func TestProgressionFromXP(t *testing.T) {
	p := ProgressionFromXP(150)
	if p.Level != 1 {
		t.Fatalf("level = %d, want 1", p.Level)
	}
	if p.XPForCurrentLevel != 100 || p.XPForNextLevel != 200 {
		t.Fatalf("current = %d / next = %d, want 100 / 200", p.XPForCurrentLevel, p.XPForNextLevel)
	}
	if p.XPProgress != 50 || p.XPNeeded != 50 {
		t.Fatalf("progress = %d / needed = %d, want 50 / 50", p.XPProgress, p.XPNeeded)
	}
	if p.ProgressPercent != 50.0 {
		t.Fatalf("percent = %v, want 50.0", p.ProgressPercent)
	}
}

func TestCreditRejectsInvalidAmounts(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	user := createTestUser(t, db, 0, 0)

	if _, err := ledger.Credit(user.ID, -1, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative xp: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := ledger.Credit(user.ID, 0, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("all-zero credit: err = %v, want ErrInvalidAmount", err)
	}
	if after := reloadUser(t, db, user.ID); after.XP != 0 || after.Balance != 0 {
		t.Fatalf("rejected credits mutated the account: xp=%d balance=%d", after.XP, after.Balance)
	}
}

func TestCreditUnknownUser(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	if _, err := ledger.Credit("00000000-0000-0000-0000-000000000000", 10, 0); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestCreditRecomputesLevel(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	user := createTestUser(t, db, 0, 0)

	res, err := ledger.Credit(user.ID, 1000, 25)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if res.XP != 1000 || res.Balance != 25 {
		t.Fatalf("result xp=%d balance=%d, want 1000/25", res.XP, res.Balance)
	}
	if res.Level != 10 || !res.LeveledUp || res.PreviousLevel != 1 {
		t.Fatalf("level=%d leveledUp=%v prev=%d, want 10/true/1", res.Level, res.LeveledUp, res.PreviousLevel)
	}

	after := reloadUser(t, db, user.ID)
	if after.Level != 10 {
		t.Fatalf("persisted level = %d, want 10", after.Level)
	}
}

func TestDebit(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	user := createTestUser(t, db, 0, 100)

	res, err := ledger.Debit(user.ID, 40)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if res.Balance != 60 || res.OldBalance != 100 {
		t.Fatalf("balance=%d old=%d, want 60/100", res.Balance, res.OldBalance)
	}

	if _, err := ledger.Debit(user.ID, 61); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraw: err = %v, want ErrInsufficientFunds", err)
	}
	if _, err := ledger.Debit(user.ID, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero debit: err = %v, want ErrInvalidAmount", err)
	}
	if after := reloadUser(t, db, user.ID); after.Balance != 60 {
		t.Fatalf("balance after failed debits = %d, want 60", after.Balance)
	}
}

func TestConcurrentCreditsAreExact(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	user := createTestUser(t, db, 0, 0)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Credit(user.ID, 10, 5); err != nil {
				t.Errorf("concurrent credit: %v", err)
			}
		}()
	}
	wg.Wait()

	after := reloadUser(t, db, user.ID)
	if after.XP != workers*10 || after.Balance != workers*5 {
		t.Fatalf("xp=%d balance=%d, want %d/%d", after.XP, after.Balance, workers*10, workers*5)
	}
	if after.Level != LevelFromXP(after.XP) {
		t.Fatalf("denormalized level %d does not match curve (%d)", after.Level, LevelFromXP(after.XP))
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	user := createTestUser(t, db, 0, 50)

	const workers = 10
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(user.ID, 10)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	if succeeded != 5 {
		t.Fatalf("%d debits succeeded, want exactly 5", succeeded)
	}
	if after := reloadUser(t, db, user.ID); after.Balance != 0 {
		t.Fatalf("final balance = %d, want 0", after.Balance)
	}
}

func TestProgressionForUser(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	user := createTestUser(t, db, 1050, 0)

	p, err := ledger.Progression(user.ID)
	if err != nil {
		t.Fatalf("Progression: %v", err)
	}
	if p.Level != 10 || p.TotalXP != 1050 {
		t.Fatalf("level=%d xp=%d, want 10/1050", p.Level, p.TotalXP)
	}

	if _, err := ledger.Progression("missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}
