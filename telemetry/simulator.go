package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// DefaultProgressInterval is the period between simulated progress steps
const DefaultProgressInterval = 750 * time.Millisecond

// ProgressPolicy decides when the simulated cleaning percentage advances
type ProgressPolicy string

const (
	// PolicySaturate advances only while connected and active, and stops at 100.
	PolicySaturate ProgressPolicy = "saturate"
	// PolicyWrap advances on every tick and wraps from 100 back to 0.
	PolicyWrap ProgressPolicy = "wrap"
	// PolicyAuthoritative behaves like PolicySaturate, and a reported
	// CLEAN_PERCENT raises the value to the robot's own figure.
	PolicyAuthoritative ProgressPolicy = "authoritative"
)

// ParseProgressPolicy parses a config value; empty selects PolicySaturate
func ParseProgressPolicy(s string) (ProgressPolicy, error) {
	switch p := ProgressPolicy(s); p {
	case "":
		return PolicySaturate, nil
	case PolicySaturate, PolicyWrap, PolicyAuthoritative:
		return p, nil
	default:
		return "", fmt.Errorf("unknown progress policy %q (want saturate, wrap or authoritative)", s)
	}
}

// progressStep is the amount added per simulator tick
const progressStep = 1

// Advance returns the cleaning percentage after one tick under policy,
// and whether it changed.
func Advance(policy ProgressPolicy, s Snapshot) (int, bool) {
	pct := min(max(s.CleaningPercent, 0), 100)

	switch policy {
	case PolicyWrap:
		if pct >= 100 {
			return 0, true
		}
		return pct + progressStep, true
	default:
		if !s.Connected || !s.Active || pct >= 100 {
			return pct, pct != s.CleaningPercent
		}
		return min(pct+progressStep, 100), true
	}
}

// Simulator advances the cleaning percentage on a fixed cadence, independent of polling
type Simulator struct {
	store    *Store
	policy   ProgressPolicy
	interval time.Duration
}

// NewSimulator creates a simulator writing into store
func NewSimulator(store *Store, policy ProgressPolicy, interval time.Duration) (*Simulator, error) {
	if store == nil {
		return nil, errors.New("simulator: store required")
	}
	if interval <= 0 {
		return nil, errors.New("simulator: interval must be > 0")
	}
	if _, err := ParseProgressPolicy(string(policy)); err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	if policy == "" {
		policy = PolicySaturate
	}
	return &Simulator{store: store, policy: policy, interval: interval}, nil
}

// Tick advances progress by one step in a single store update.
// It returns the resulting percentage and whether the snapshot changed.
func (s *Simulator) Tick() (int, bool) {
	snap, changed := s.store.Update(func(snap *Snapshot) bool {
		next, ok := Advance(s.policy, *snap)
		if !ok {
			return false
		}
		snap.CleaningPercent = next
		return true
	})
	if changed && snap.CleaningPercent == 100 && s.policy != PolicyWrap {
		log.Printf("[PROGRESS] cleaning complete")
	}
	return snap.CleaningPercent, changed
}

// Run ticks on every interval until ctx is done
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
