package session

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kingrea/role2-builder/internal/exercise"
)

func newTestStore(t *testing.T, storage Storage) *Store {
	t.Helper()
	fixed := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	return NewStore(storage,
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { return "session-1" }),
	)
}

func TestStoreWithoutSessionReportsNoConfiguration(t *testing.T) {
	store := newTestStore(t, NewFileStorage(t.TempDir()))
	if _, err := store.Snapshot(); !errors.Is(err, ErrNoConfiguration) {
		t.Fatalf("expected ErrNoConfiguration, got %v", err)
	}
	if err := store.SetName("x"); !errors.Is(err, ErrNoConfiguration) {
		t.Fatalf("setter without session should fail, got %v", err)
	}
	if err := store.SaveSnapshot(context.Background()); !errors.Is(err, ErrNoConfiguration) {
		t.Fatalf("save without session should fail, got %v", err)
	}
}

func TestSetDurationKeepsLeadingDays(t *testing.T) {
	store := newTestStore(t, NewFileStorage(t.TempDir()))
	store.Begin()
	if err := store.UpdateDay(2, exercise.DayUpdate{TotalPatients: exercise.Ptr(12), NightOps: exercise.Ptr(true)}); err != nil {
		t.Fatalf("UpdateDay: %v", err)
	}
	before, _ := store.Snapshot()

	for _, n := range []int{7, 2, 5} {
		if err := store.SetDuration(n); err != nil {
			t.Fatalf("SetDuration(%d): %v", n, err)
		}
		cfg, _ := store.Snapshot()
		if len(cfg.Days) != n || cfg.Duration != n {
			t.Fatalf("duration %d produced %d days", n, len(cfg.Days))
		}
		for i := range cfg.Days {
			if cfg.Days[i].Number != i+1 {
				t.Fatalf("day at %d numbered %d", i, cfg.Days[i].Number)
			}
		}
		if !reflect.DeepEqual(cfg.Days[:2], before.Days[:2]) {
			t.Fatalf("leading days changed after SetDuration(%d)", n)
		}
	}
}

func TestRejectedUpdateLeavesConfigUnchanged(t *testing.T) {
	store := newTestStore(t, NewFileStorage(t.TempDir()))
	store.Begin()
	before, _ := store.Snapshot()
	err := store.UpdateDay(1, exercise.DayUpdate{
		NightOps:   exercise.Ptr(true),
		TotalWaves: exercise.Ptr(50),
	})
	if err == nil {
		t.Fatalf("expected waves > patients to be rejected")
	}
	after, _ := store.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected update mutated the configuration")
	}
	if err := store.SetDuration(0); err == nil {
		t.Fatalf("expected duration 0 to be rejected")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	store := newTestStore(t, NewFileStorage(t.TempDir()))
	store.Begin()
	if _, err := store.ToggleFootprint("STP"); err != nil {
		t.Fatalf("ToggleFootprint: %v", err)
	}
	snap, _ := store.Snapshot()
	snap.Footprint[0] = "MUTATED"
	snap.Days[0].TotalPatients = 99
	again, _ := store.Snapshot()
	if again.Footprint[0] != "STP" || again.Days[0].TotalPatients == 99 {
		t.Fatalf("snapshot shares state with the store")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	backends := map[string]func(t *testing.T) Storage{
		"file": func(t *testing.T) Storage { return NewFileStorage(t.TempDir()) },
		"sqlite": func(t *testing.T) Storage {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "session.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			storage := open(t)
			store := newTestStore(t, storage)
			store.Begin()
			if err := store.SetName("Operation Test"); err != nil {
				t.Fatal(err)
			}
			if err := store.SetDuration(4); err != nil {
				t.Fatal(err)
			}
			if err := store.SetMascal(3, true); err != nil {
				t.Fatal(err)
			}
			want, _ := store.Snapshot()
			if err := store.SaveSnapshot(ctx); err != nil {
				t.Fatalf("SaveSnapshot: %v", err)
			}

			reloaded := newTestStore(t, storage)
			got, err := reloaded.LoadSnapshot(ctx)
			if err != nil {
				t.Fatalf("LoadSnapshot: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}
			if reloaded.SessionID() != "session-1" {
				t.Fatalf("session id = %q", reloaded.SessionID())
			}
			if n, err := reloaded.SavedDuration(ctx); err != nil || n != 4 {
				t.Fatalf("SavedDuration = %d, %v", n, err)
			}
		})
	}
}

func TestLoadSnapshotDiscardsBadEnvelopes(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"version":`,
		"wrong version": `{"version":2,"session_id":"a","config":{}}`,
		"missing days":  `{"version":1,"config":{"exercise_name":"x","duration":3,"days":[]}}`,
		"no config":     `{"version":1,"session_id":"a"}`,
		"stale mascal fields": `{"version":1,"config":{"duration":1,"days":[` +
			`{"day_number":1,"mascal":false,"mascal_etiology":"Burn","mascal_patients":5}]}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			storage := NewFileStorage(t.TempDir())
			if err := storage.Put(ctx, ConfigKey, []byte(raw)); err != nil {
				t.Fatal(err)
			}
			store := newTestStore(t, storage)
			if _, err := store.LoadSnapshot(ctx); !errors.Is(err, ErrNoConfiguration) {
				t.Fatalf("expected ErrNoConfiguration, got %v", err)
			}
			if _, err := store.Snapshot(); !errors.Is(err, ErrNoConfiguration) {
				t.Fatalf("store must stay empty, got %v", err)
			}
			if _, err := storage.Get(ctx, ConfigKey); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("bad snapshot should be deleted, got %v", err)
			}
		})
	}
}

func TestLoadSnapshotAbsent(t *testing.T) {
	store := newTestStore(t, NewFileStorage(t.TempDir()))
	if _, err := store.LoadSnapshot(context.Background()); !errors.Is(err, ErrNoConfiguration) {
		t.Fatalf("expected ErrNoConfiguration, got %v", err)
	}
	if _, err := store.SavedDuration(context.Background()); !errors.Is(err, ErrNoConfiguration) {
		t.Fatalf("expected ErrNoConfiguration for duration, got %v", err)
	}
}

func TestDiscardRemovesKeys(t *testing.T) {
	ctx := context.Background()
	storage := NewFileStorage(t.TempDir())
	store := newTestStore(t, storage)
	store.Begin()
	if err := store.SaveSnapshot(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Discard(ctx); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	for _, key := range []string{ConfigKey, DurationKey} {
		if _, err := storage.Get(ctx, key); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("%s still present: %v", key, err)
		}
	}
}

func TestFileStorageRejectsPathKeys(t *testing.T) {
	storage := NewFileStorage(t.TempDir())
	if err := storage.Put(context.Background(), "../escape", []byte("x")); err == nil {
		t.Fatalf("expected invalid key error")
	}
}
