package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a host is skipped after repeated failures.
var ErrCircuitOpen = eris.New("circuit open")

// State is the state of one host breaker.
type State int

// Breaker states.
const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig controls when a host is taken out of rotation.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker. Default 5.
	Threshold int
	// Cooldown is how long an open breaker waits before letting one probe through.
	// Zero keeps it open for the rest of the run.
	Cooldown time.Duration
}

type hostState struct {
	state    State
	failures int
	openedAt time.Time
}

// HostBreakers tracks consecutive transfer failures per host. Once a host
// reaches the threshold, Allow refuses it until the cooldown elapses.
type HostBreakers struct {
	cfg   BreakerConfig
	mu    sync.Mutex
	hosts map[string]*hostState
	now   func() time.Time
}

// NewHostBreakers creates an empty registry.
func NewHostBreakers(cfg BreakerConfig) *HostBreakers {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	return &HostBreakers{cfg: cfg, hosts: make(map[string]*hostState), now: time.Now}
}

func (b *HostBreakers) get(host string) *hostState {
	h, ok := b.hosts[host]
	if !ok {
		h = &hostState{}
		b.hosts[host] = h
	}
	return h
}

// Allow returns ErrCircuitOpen when host must be skipped.
func (b *HostBreakers) Allow(host string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.get(host)
	switch h.state {
	case Open:
		if b.cfg.Cooldown > 0 && b.now().Sub(h.openedAt) >= b.cfg.Cooldown {
			h.state = HalfOpen
			return nil
		}
		return eris.Wrapf(ErrCircuitOpen, "host %s", host)
	default:
		return nil
	}
}

// Record registers the outcome of one transfer to host.
func (b *HostBreakers) Record(host string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.get(host)
	if err == nil {
		h.state = Closed
		h.failures = 0
		return
	}

	h.failures++
	if h.state == HalfOpen || h.failures >= b.cfg.Threshold {
		h.state = Open
		h.openedAt = b.now()
	}
}

// State returns the current state of host.
func (b *HostBreakers) State(host string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.hosts[host]; ok {
		return h.state
	}
	return Closed
}

// States returns a snapshot of every known host.
func (b *HostBreakers) States() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]State, len(b.hosts))
	for k, h := range b.hosts {
		out[k] = h.state
	}
	return out
}
