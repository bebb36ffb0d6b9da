package recorder

import (
	"slices"
	"sync"
)

// Pool hands out one [Controller] per client, created on first use. Each
// controller records from the client's own audio source.
type Pool struct {
	newDevice DeviceFactory
	cfg       DeviceConfig
	pathFor   func(clientID, sessionID string) string
	opts      []Option

	mu    sync.Mutex
	ctrls map[string]*poolEntry
}

type poolEntry struct {
	c *Controller

	// starting counts Start calls in flight on c.
	starting int

	// pinned is set once c was handed out by Recorder; pinned entries are
	// never evicted.
	pinned bool
}

// NewPool creates an empty pool. cfg.Source is replaced with the client ID
// for every controller. pathFor, when non-nil, names the output file of each
// session; otherwise cfg.OutputPath is used. opts apply to every controller.
func NewPool(newDevice DeviceFactory, cfg DeviceConfig, pathFor func(clientID, sessionID string) string, opts ...Option) *Pool {
	return &Pool{
		newDevice: newDevice,
		cfg:       cfg,
		pathFor:   pathFor,
		opts:      opts,
		ctrls:     make(map[string]*poolEntry),
	}
}

// Recorder returns the controller for clientID, creating it if needed. The
// controller stays in the pool for the pool's lifetime.
func (p *Pool) Recorder(clientID string) *Controller {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entryLocked(clientID)
	e.pinned = true
	return e.c
}

// Start starts a session for clientID. A controller created for this call is
// dropped again if Start fails and the client never recorded, so failed
// attempts on unknown clients leave nothing behind.
func (p *Pool) Start(clientID string) error {
	p.mu.Lock()
	e := p.entryLocked(clientID)
	e.starting++
	p.mu.Unlock()

	err := e.c.Start()

	p.mu.Lock()
	defer p.mu.Unlock()
	e.starting--
	if err != nil && !e.pinned && e.starting == 0 && e.c.State() == StateIdle && e.c.Status().SessionID == "" {
		if p.ctrls[clientID] == e {
			delete(p.ctrls, clientID)
		}
	}
	return err
}

func (p *Pool) entryLocked(clientID string) *poolEntry {
	if e, ok := p.ctrls[clientID]; ok {
		return e
	}

	cfg := p.cfg
	cfg.Source = clientID
	opts := slices.Clone(p.opts)
	if p.pathFor != nil {
		opts = append(opts, WithOutputPath(func(sessionID string) string {
			return p.pathFor(clientID, sessionID)
		}))
	}
	e := &poolEntry{c: New(p.newDevice, cfg, opts...)}
	p.ctrls[clientID] = e
	return e
}

// Lookup returns the controller for clientID without creating one.
func (p *Pool) Lookup(clientID string) (*Controller, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.ctrls[clientID]
	if !ok {
		return nil, false
	}
	return e.c, true
}

// Clients returns the IDs of all clients that have a controller, sorted.
func (p *Pool) Clients() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.ctrls))
	for id := range p.ctrls {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ReleaseAll releases the active session of every controller.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	ctrls := make([]*Controller, 0, len(p.ctrls))
	for _, e := range p.ctrls {
		ctrls = append(ctrls, e.c)
	}
	p.mu.Unlock()

	for _, c := range ctrls {
		c.Release()
	}
}
