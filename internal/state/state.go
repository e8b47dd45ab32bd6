// Package state holds the global scalars that may arrive on any channel's
// frames: simulation clock, escrow balances, run flags and contract
// ownership. It is the single writer for those fields; readers get copies.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Balance is one trader's escrow account: free balance plus funds locked
// against open journeys.
type Balance struct {
	Balance decimal.Decimal `json:"balance"`
	Locked  decimal.Decimal `json:"locked"`
}

// Snapshot is a read-only copy of the global state for the render layer.
type Snapshot struct {
	Clock           float64            `json:"simulation_clock"`
	Balances        map[string]Balance `json:"balances"`
	Running         bool               `json:"is_running"`
	Paused          bool               `json:"is_paused"`
	Connected       bool               `json:"connected"`
	Owner           string             `json:"current_owner"`
	ContainerStatus string             `json:"container_status"`
}

type Global struct {
	mu              sync.RWMutex
	clock           float64
	balances        map[string]Balance
	owner           string
	containerStatus string

	running   atomic.Bool
	paused    atomic.Bool
	connected atomic.Bool
}

func NewGlobal() *Global {
	return &Global{balances: map[string]Balance{}}
}

func (g *Global) SetClock(v float64) {
	g.mu.Lock()
	g.clock = v
	g.mu.Unlock()
}

func (g *Global) Clock() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.clock
}

// SetBalances replaces the balance table wholesale, like every other
// frame-carried entity.
func (g *Global) SetBalances(b map[string]Balance) {
	if b == nil {
		b = map[string]Balance{}
	}
	g.mu.Lock()
	g.balances = b
	g.mu.Unlock()
}

func (g *Global) Balances() map[string]Balance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Balance, len(g.balances))
	for k, v := range g.balances {
		out[k] = v
	}
	return out
}

func (g *Global) SetOwner(owner string) {
	g.mu.Lock()
	g.owner = owner
	g.mu.Unlock()
}

func (g *Global) Owner() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

func (g *Global) SetContainerStatus(status string) {
	g.mu.Lock()
	g.containerStatus = status
	g.mu.Unlock()
}

func (g *Global) ContainerStatus() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.containerStatus
}

func (g *Global) SetRunning(v bool)   { g.running.Store(v) }
func (g *Global) Running() bool       { return g.running.Load() }
func (g *Global) SetPaused(v bool)    { g.paused.Store(v) }
func (g *Global) Paused() bool        { return g.paused.Load() }
func (g *Global) SetConnected(v bool) { g.connected.Store(v) }
func (g *Global) Connected() bool     { return g.connected.Load() }

func (g *Global) Snapshot() Snapshot {
	return Snapshot{
		Clock:           g.Clock(),
		Balances:        g.Balances(),
		Running:         g.Running(),
		Paused:          g.Paused(),
		Connected:       g.Connected(),
		Owner:           g.Owner(),
		ContainerStatus: g.ContainerStatus(),
	}
}
