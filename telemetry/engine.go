package telemetry

import (
	"context"
	"fmt"
	"sync"
)

// Engine wires one poller and one simulator to a shared store
type Engine struct {
	store     *Store
	poller    *Poller
	simulator *Simulator
}

// EngineOption configures NewEngine
type EngineOption func(*engineOptions)

type engineOptions struct {
	source    Source
	fetchOpts []FetchOption
}

// WithSource replaces the HTTP source built from the config
func WithSource(src Source) EngineOption {
	return func(o *engineOptions) {
		o.source = src
	}
}

// WithFetchOptions passes extra options to the HTTP source
func WithFetchOptions(opts ...FetchOption) EngineOption {
	return func(o *engineOptions) {
		o.fetchOpts = append(o.fetchOpts, opts...)
	}
}

// NewEngine builds an engine from a validated config
func NewEngine(cfg *Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	table, err := cfg.FieldTable()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	policy, err := ParseProgressPolicy(cfg.ProgressPolicy)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	initial := NewSnapshot()
	initial.CleaningPercent = min(max(cfg.InitialCleaningPercent, 0), 100)
	store := NewStore(initial)
	mapper := NewMapper(table, policy)

	src := o.source
	if src == nil {
		fetchOpts := []FetchOption{}
		if t := cfg.RequestTimeout(); t > 0 {
			fetchOpts = append(fetchOpts, WithTimeout(t))
		}
		fetchOpts = append(fetchOpts, o.fetchOpts...)
		src = &HTTPSource{URL: cfg.EndpointURL, Options: fetchOpts}
	}

	poller, err := NewPoller(src, Codec{Delimiters: cfg.Delimiters}, mapper, store, cfg.PollInterval(), cfg.StrictOrdering)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	simulator, err := NewSimulator(store, policy, cfg.ProgressInterval())
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Engine{
		store:     store,
		poller:    poller,
		simulator: simulator,
	}, nil
}

// Store returns the engine's snapshot store
func (e *Engine) Store() *Store {
	return e.store
}

// Snapshot returns a copy of the current snapshot
func (e *Engine) Snapshot() Snapshot {
	return e.store.Read()
}

// Simulator returns the engine's progress simulator
func (e *Engine) Simulator() *Simulator {
	return e.simulator
}

// PollOnce runs a single poll cycle and returns the resulting snapshot
func (e *Engine) PollOnce(ctx context.Context) (Snapshot, PollResult) {
	res := e.poller.Tick(ctx)
	return e.store.Read(), res
}

// Run starts the poller and the simulator and blocks until ctx is done
// and both have stopped.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.simulator.Run(ctx)
	}()
	wg.Wait()
}
