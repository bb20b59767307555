package libroutine

import (
	"context"
	"log"
	"sync"
	"time"
)

// LoopConfig describes one managed background loop.
type LoopConfig struct {
	Key          string
	Threshold    int
	ResetTimeout time.Duration
	Interval     time.Duration
	Operation    func(ctx context.Context) error
}

// Group manages named breaker-guarded loops. One loop per key; repeated
// StartLoop calls for the same key are no-ops while the loop is alive.
type Group struct {
	mu       sync.Mutex
	managers map[string]*Routine
	active   map[string]chan struct{}
}

var (
	groupInstance *Group
	groupOnce     sync.Once
)

// GetGroup returns the process-wide loop group.
func GetGroup() *Group {
	groupOnce.Do(func() {
		groupInstance = &Group{
			managers: make(map[string]*Routine),
			active:   make(map[string]chan struct{}),
		}
	})
	return groupInstance
}

// StartLoop starts a managed loop for cfg.Key unless one is already running.
// Breaker parameters are fixed by the first call for a given key.
func (g *Group) StartLoop(ctx context.Context, cfg *LoopConfig) {
	g.mu.Lock()
	if _, running := g.active[cfg.Key]; running {
		g.mu.Unlock()
		return
	}
	manager, ok := g.managers[cfg.Key]
	if !ok {
		manager = NewRoutine(cfg.Threshold, cfg.ResetTimeout)
		g.managers[cfg.Key] = manager
	}
	trigger := make(chan struct{}, 1)
	g.active[cfg.Key] = trigger
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.active, cfg.Key)
			g.mu.Unlock()
		}()
		manager.Loop(ctx, cfg.Interval, trigger, cfg.Operation, func(err error) {
			log.Printf("libroutine: loop %q failed: %v", cfg.Key, err)
		})
	}()
}

// IsLoopActive reports whether a loop is currently running for key.
func (g *Group) IsLoopActive(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[key]
	return ok
}

// GetManager returns the breaker for key, or nil if none exists yet.
func (g *Group) GetManager(key string) *Routine {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.managers[key]
}

// ForceUpdate triggers an immediate run of the loop for key, if active.
func (g *Group) ForceUpdate(key string) {
	g.mu.Lock()
	trigger, ok := g.active[key]
	g.mu.Unlock()
	if !ok {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}
