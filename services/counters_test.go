package services

import (
	"errors"
	"sync"
	"testing"
)

func TestCounterIncrementAccumulates(t *testing.T) {
	db := newTestDB(t)
	counters := NewCounterService(db)
	user := createTestUser(t, db, 0, 0)

	for _, delta := range []int64{3, 4, 5} {
		if err := counters.Increment(db, user.ID, "mobs_killed", delta); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	got, err := counters.Get(db, user.ID, "mobs_killed")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 12 {
		t.Fatalf("counter = %d, want 12", got)
	}
}

func TestCounterIncrementRejectsNonPositive(t *testing.T) {
	db := newTestDB(t)
	counters := NewCounterService(db)
	user := createTestUser(t, db, 0, 0)

	if err := counters.Increment(db, user.ID, "mobs_killed", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero delta: err = %v, want ErrInvalidAmount", err)
	}
	if err := counters.Increment(db, user.ID, "mobs_killed", -2); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative delta: err = %v, want ErrInvalidAmount", err)
	}
}

func TestCounterSetOverwrites(t *testing.T) {
	db := newTestDB(t)
	counters := NewCounterService(db)
	user := createTestUser(t, db, 0, 0)

	if err := counters.Increment(db, user.ID, "play_minutes", 30); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if err := counters.Set(db, user.ID, "play_minutes", 7); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := counters.Get(db, user.ID, "play_minutes")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 7 {
		t.Fatalf("counter = %d, want 7 (Set is absolute, not additive)", got)
	}

	if err := counters.Set(db, user.ID, "play_minutes", -1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative set: err = %v, want ErrInvalidAmount", err)
	}
}

func TestCounterGetAbsentIsZero(t *testing.T) {
	db := newTestDB(t)
	counters := NewCounterService(db)
	user := createTestUser(t, db, 0, 0)

	got, err := counters.Get(db, user.ID, "never_touched")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 0 {
		t.Fatalf("absent counter = %d, want 0", got)
	}
}

func TestCounterGetAll(t *testing.T) {
	db := newTestDB(t)
	counters := NewCounterService(db)
	user := createTestUser(t, db, 0, 0)
	other := createTestUser(t, db, 0, 0)

	counters.Increment(db, user.ID, "mobs_killed", 2)
	counters.Increment(db, user.ID, "blocks_mined", 9)
	counters.Increment(db, other.ID, "mobs_killed", 100)

	all, err := counters.GetAll(db, user.ID)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 || all["mobs_killed"] != 2 || all["blocks_mined"] != 9 {
		t.Fatalf("GetAll = %v, want map[blocks_mined:9 mobs_killed:2]", all)
	}
}

func TestCounterConcurrentIncrements(t *testing.T) {
	db := newTestDB(t)
	counters := NewCounterService(db)
	user := createTestUser(t, db, 0, 0)

	const workers = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := counters.Increment(db, user.ID, "logins", 1); err != nil {
				t.Errorf("concurrent increment: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := counters.Get(db, user.ID, "logins")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != workers {
		t.Fatalf("counter = %d, want %d", got, workers)
	}
}
