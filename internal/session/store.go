// Package session owns the exercise configuration for one wizard session and
// snapshots it to durable storage between steps.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/logbook"
)

const (
	// ConfigKey holds the serialized snapshot envelope.
	ConfigKey = "exerciseConfig"
	// DurationKey holds the raw duration, written alongside every snapshot.
	DurationKey = "exerciseDuration"

	// SnapshotVersion is the only envelope version this build understands.
	SnapshotVersion = 1
)

// ErrNoConfiguration means there is no usable configuration: no session was
// begun, or the persisted snapshot is absent or unreadable.
var ErrNoConfiguration = errors.New("session: no configuration")

// envelope is the persisted snapshot format.
type envelope struct {
	Version   int             `json:"version"`
	SessionID string          `json:"session_id"`
	SavedAt   time.Time       `json:"saved_at"`
	Config    json.RawMessage `json:"config"`
}

// Store holds the current configuration. Every setter edits a clone and
// commits only when the edit succeeds.
type Store struct {
	mu        sync.Mutex
	storage   Storage
	journal   *logbook.Logbook
	clock     func() time.Time
	newID     func() string
	current   *exercise.Config
	sessionID string
}

// Option customizes a Store.
type Option func(*Store)

// WithLogbook records saves and discarded snapshots in the journey log.
func WithLogbook(book *logbook.Logbook) Option {
	return func(s *Store) { s.journal = book }
}

// WithClock overrides the snapshot timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore creates a store with no configuration.
func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		clock:   time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin starts a fresh session populated with defaults.
func (s *Store) Begin() exercise.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := exercise.New()
	s.current = &cfg
	s.sessionID = s.newID()
	s.journal.Info("session %s started", s.sessionID)
	return cfg.Clone()
}

// Reset drops the in-memory configuration.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.sessionID = ""
}

// SessionID returns the id of the active session, or "".
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Snapshot returns a deep copy of the current configuration.
func (s *Store) Snapshot() (exercise.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return exercise.Config{}, ErrNoConfiguration
	}
	return s.current.Clone(), nil
}

// Update applies fn to a clone of the configuration and commits it if fn
// returns nil.
func (s *Store) Update(fn func(*exercise.Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoConfiguration
	}
	next := s.current.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.current = &next
	return nil
}

func (s *Store) SetName(name string) error {
	return s.Update(func(c *exercise.Config) error {
		c.SetName(name)
		return nil
	})
}

// SetDuration resizes the schedule; days below n are left untouched.
func (s *Store) SetDuration(n int) error {
	return s.Update(func(c *exercise.Config) error { return c.SetDuration(n) })
}

func (s *Store) SetUnitType(v string) error {
	return s.Update(func(c *exercise.Config) error { return c.SetUnitType(v) })
}

func (s *Store) SetEnvironment(v string) error {
	return s.Update(func(c *exercise.Config) error { return c.SetEnvironment(v) })
}

func (s *Store) SetThreatLevel(v string) error {
	return s.Update(func(c *exercise.Config) error { return c.SetThreatLevel(v) })
}

func (s *Store) SetRegion(v string) error {
	return s.Update(func(c *exercise.Config) error { return c.SetRegion(v) })
}

func (s *Store) ToggleMissionTask(id string) (bool, error) {
	var selected bool
	err := s.Update(func(c *exercise.Config) error {
		var err error
		selected, err = c.ToggleMissionTask(id)
		return err
	})
	return selected, err
}

func (s *Store) ToggleFootprint(id string) (bool, error) {
	var enabled bool
	err := s.Update(func(c *exercise.Config) error {
		var err error
		enabled, err = c.ToggleFootprint(id)
		return err
	})
	return enabled, err
}

func (s *Store) SetSpecialist(specialty string, count int) error {
	return s.Update(func(c *exercise.Config) error { return c.SetSpecialist(specialty, count) })
}

func (s *Store) UpdateDay(number int, u exercise.DayUpdate) error {
	return s.Update(func(c *exercise.Config) error { return c.UpdateDay(number, u) })
}

func (s *Store) SetMascal(number int, on bool) error {
	return s.Update(func(c *exercise.Config) error { return c.SetMascal(number, on) })
}

func (s *Store) CopyForward(from int) error {
	return s.Update(func(c *exercise.Config) error { return c.CopyForward(from) })
}

// SaveSnapshot writes the current configuration and its duration.
func (s *Store) SaveSnapshot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoConfiguration
	}
	body, err := json.Marshal(s.current)
	if err != nil {
		return fmt.Errorf("session: encode config: %w", err)
	}
	encoded, err := json.Marshal(envelope{
		Version:   SnapshotVersion,
		SessionID: s.sessionID,
		SavedAt:   s.clock().UTC(),
		Config:    body,
	})
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}
	if err := s.storage.Put(ctx, ConfigKey, encoded); err != nil {
		return err
	}
	if err := s.storage.Put(ctx, DurationKey, []byte(strconv.Itoa(s.current.Duration))); err != nil {
		return err
	}
	s.journal.Info("session %s saved (%d days)", s.sessionID, s.current.Duration)
	return nil
}

// LoadSnapshot replaces the current configuration with the persisted one.
// Anything other than a complete, current-version snapshot yields
// ErrNoConfiguration and leaves the store empty; unreadable snapshots are
// deleted.
func (s *Store) LoadSnapshot(ctx context.Context) (exercise.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.sessionID = ""

	data, err := s.storage.Get(ctx, ConfigKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return exercise.Config{}, ErrNoConfiguration
		}
		return exercise.Config{}, err
	}
	cfg, id, reason := decodeSnapshot(data)
	if reason != "" {
		s.journal.Warn("discarding saved session: %s", reason)
		if err := s.storage.Delete(ctx, ConfigKey); err != nil {
			return exercise.Config{}, err
		}
		return exercise.Config{}, ErrNoConfiguration
	}
	if id == "" {
		id = s.newID()
	}
	s.current = &cfg
	s.sessionID = id
	return cfg.Clone(), nil
}

// SavedDuration returns the duration persisted with the last snapshot.
func (s *Store) SavedDuration(ctx context.Context) (int, error) {
	data, err := s.storage.Get(ctx, DurationKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return 0, ErrNoConfiguration
		}
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 1 {
		return 0, ErrNoConfiguration
	}
	return n, nil
}

// Discard deletes the persisted snapshot and duration.
func (s *Store) Discard(ctx context.Context) error {
	if err := s.storage.Delete(ctx, ConfigKey); err != nil {
		return err
	}
	return s.storage.Delete(ctx, DurationKey)
}

func decodeSnapshot(data []byte) (exercise.Config, string, string) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return exercise.Config{}, "", "malformed envelope"
	}
	if env.Version != SnapshotVersion {
		return exercise.Config{}, "", fmt.Sprintf("unsupported snapshot version %d", env.Version)
	}
	if len(env.Config) == 0 || string(env.Config) == "null" {
		return exercise.Config{}, "", "snapshot has no config"
	}
	var cfg exercise.Config
	if err := json.Unmarshal(env.Config, &cfg); err != nil {
		return exercise.Config{}, "", "malformed config"
	}
	if err := cfg.Structural(); err != nil {
		return exercise.Config{}, "", err.Error()
	}
	if cfg.MissionTasks == nil {
		cfg.MissionTasks = []string{}
	}
	if cfg.Footprint == nil {
		cfg.Footprint = []string{}
	}
	if cfg.Specialists == nil {
		cfg.Specialists = map[string]int{}
	}
	return cfg, env.SessionID, ""
}
