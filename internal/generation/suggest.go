package generation

import (
	"context"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/genclient"
)

var (
	placeholderAdjectives = []string{"Steel", "Iron", "Crimson", "Silent", "Northern", "Granite", "Vigilant", "Resolute"}
	placeholderNouns      = []string{"Knight", "Tide", "Shield", "Lance", "Harbor", "Sentinel", "Anvil", "Compass"}
)

// SuggestName asks the service for an exercise name. It never fails: any
// error falls back to a placeholder derived from the same seed.
func (o *Orchestrator) SuggestName(ctx context.Context, cfg exercise.Config) string {
	seed := o.newSeed()
	name, err := o.remote.GenerateName(ctx, genclient.NameRequest{
		AOR:         cfg.Environment,
		UnitType:    cfg.UnitType,
		Region:      cfg.Region,
		ThreatLevel: cfg.ThreatLevel,
		Seed:        seed,
	})
	if err != nil {
		fallback := PlaceholderName(seed)
		o.journal.Warn("name suggestion unavailable (%v), using %q", err, fallback)
		return fallback
	}
	return name
}

// PlaceholderName deterministically picks a local name for seed.
func PlaceholderName(seed string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum32()
	adj := placeholderAdjectives[sum%uint32(len(placeholderAdjectives))]
	noun := placeholderNouns[(sum/uint32(len(placeholderAdjectives)))%uint32(len(placeholderNouns))]
	return adj + " " + noun
}

func newSeed() string {
	return uuid.NewString()
}
