package telemetry

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the period between telemetry fetches
const DefaultPollInterval = 2 * time.Second

// Source returns the next telemetry envelope from the robot's status endpoint
type Source interface {
	Fetch(ctx context.Context) (*Envelope, error)
}

// HTTPSource fetches envelopes from an HTTP endpoint
type HTTPSource struct {
	URL     string
	Options []FetchOption
}

// Fetch performs one GET against the endpoint
func (s *HTTPSource) Fetch(ctx context.Context) (*Envelope, error) {
	return FetchEnvelope(ctx, s.URL, s.Options...)
}

// PollResult describes the outcome of one poll cycle
type PollResult struct {
	Gen     uint64
	At      time.Time
	Err     error // fetch error, already folded into the snapshot
	Applied bool  // false when the cycle left the snapshot untouched
	Stale   bool  // discarded because a newer cycle was already applied

	// Unmapped is set when the telemetry carried keys but none the field table reads
	Unmapped bool
}

// Poller drives fetch, decode and merge cycles against the telemetry source.
//
// Cycles may overlap: each Run tick starts its own cycle, and a slow
// response never delays the next one. By default a late response is still
// applied when it arrives (last write wins). With strict ordering, a
// response older than the newest applied one is discarded.
type Poller struct {
	source   Source
	codec    Codec
	mapper   *Mapper
	store    *Store
	interval time.Duration
	strict   bool

	issued atomic.Uint64
	// applied is only touched inside Store.Update callbacks, which are serialized.
	applied uint64

	inflight sync.WaitGroup

	logMu           sync.Mutex
	loggedConnected bool
	loggedFailure   string
	warnedUnmapped  bool
}

// NewPoller creates a poller writing into store
func NewPoller(source Source, codec Codec, mapper *Mapper, store *Store, interval time.Duration, strictOrdering bool) (*Poller, error) {
	if source == nil {
		return nil, errors.New("poller: source required")
	}
	if mapper == nil || store == nil {
		return nil, errors.New("poller: mapper and store required")
	}
	if interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	return &Poller{
		source:   source,
		codec:    codec,
		mapper:   mapper,
		store:    store,
		interval: interval,
		strict:   strictOrdering,
	}, nil
}

// Tick performs exactly one poll cycle and folds the outcome into the store.
// Every fault is absorbed into the snapshot; the returned PollResult is informational.
func (p *Poller) Tick(ctx context.Context) PollResult {
	gen := p.issued.Add(1)
	env, err := p.source.Fetch(ctx)
	if ctx.Err() != nil {
		// Shutting down: a cancelled request says nothing about the robot.
		return PollResult{Gen: gen, At: time.Now(), Err: err}
	}
	return p.apply(gen, env, err)
}

// apply writes one cycle's outcome with a single store update
func (p *Poller) apply(gen uint64, env *Envelope, fetchErr error) PollResult {
	res := PollResult{Gen: gen, At: time.Now(), Err: fetchErr}
	var newest uint64

	var decoded map[string]float64
	if fetchErr == nil && env.HasData() {
		decoded = p.codec.Decode(*env.Data)
		if len(decoded) > 0 && !p.mapper.Matches(decoded) {
			res.Unmapped = true
			p.warnUnmapped(decoded)
		}
	}

	snap, written := p.store.Update(func(s *Snapshot) bool {
		if p.strict && gen < p.applied {
			res.Stale = true
			newest = p.applied
			return false
		}

		if fetchErr != nil {
			p.applied = max(p.applied, gen)
			s.Connected = false
			s.Active = false
			s.Errors = []string{"API Error: " + fetchErr.Error()}
			return true
		}

		if !env.HasData() {
			// No new readings this cycle.
			return false
		}

		p.applied = max(p.applied, gen)
		next := p.mapper.Merge(decoded, *s)
		next.Connected = true
		if p.mapper.DerivesActivity() {
			next.Active = next.Flags.Drive
		} else {
			next.Active = true
		}
		if next.Flags.Disoriented {
			next.Errors = []string{DisorientedWarning}
		} else {
			next.Errors = []string{}
		}
		if env.RSSI != nil {
			next.SignalStrength = int(math.Round(*env.RSSI))
		}
		*s = next
		return true
	})
	res.Applied = written

	if res.Stale {
		log.Printf("[POLL] discarded stale response from cycle %d (cycle %d already applied)", gen, newest)
	}
	if written {
		p.logTransition(snap)
	}
	return res
}

// logTransition logs connection changes and new failure messages only, to keep a 2s poll quiet
func (p *Poller) logTransition(s Snapshot) {
	p.logMu.Lock()
	defer p.logMu.Unlock()

	if s.Connected {
		if !p.loggedConnected {
			log.Printf("[POLL] telemetry connected (rssi=%d dBm)", s.SignalStrength)
		}
		p.loggedConnected = true
		p.loggedFailure = ""
		return
	}
	if banner := s.Banner(); banner != p.loggedFailure {
		log.Printf("[POLL] telemetry unavailable: %s", banner)
		p.loggedFailure = banner
	}
	p.loggedConnected = false
}

// warnUnmapped logs once when the robot's keys and the configured table do not overlap
func (p *Poller) warnUnmapped(decoded map[string]float64) {
	p.logMu.Lock()
	defer p.logMu.Unlock()
	if p.warnedUnmapped {
		return
	}
	p.warnedUnmapped = true

	keys := make([]string, 0, len(decoded))
	for k := range decoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	log.Printf("[POLL] telemetry keys %v match none of the configured keys %v; check variant or fields in the config",
		keys, p.mapper.Table.Keys())
}

// Run polls once immediately, then on every interval until ctx is done.
// It waits for in-flight cycles before returning.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.inflight.Wait()

	p.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.spawn(ctx)
		}
	}
}

func (p *Poller) spawn(ctx context.Context) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.Tick(ctx)
	}()
}
