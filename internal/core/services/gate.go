package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// threadGate admits one request per key at a time.
type threadGate struct {
	mu    sync.Mutex
	slots map[string]*gateSlot
}

type gateSlot struct {
	ch   chan struct{}
	refs int
}

func newThreadGate() *threadGate {
	return &threadGate{slots: make(map[string]*gateSlot)}
}

// acquire takes the slot for key. With wait false a held slot fails with
// domain.ErrThreadBusy; with wait true it blocks until the slot frees or
// ctx ends. The returned release must be called exactly once.
func (g *threadGate) acquire(ctx context.Context, key string, wait bool) (func(), error) {
	g.mu.Lock()
	slot, ok := g.slots[key]
	if !ok {
		slot = &gateSlot{ch: make(chan struct{}, 1)}
		g.slots[key] = slot
	}
	slot.refs++
	g.mu.Unlock()

	if wait {
		select {
		case slot.ch <- struct{}{}:
		case <-ctx.Done():
			g.drop(key, slot)
			return nil, ctx.Err()
		}
	} else {
		select {
		case slot.ch <- struct{}{}:
		default:
			g.drop(key, slot)
			return nil, fmt.Errorf("thread %s: %w", key, domain.ErrThreadBusy)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			g.drop(key, slot)
		})
	}, nil
}

func (g *threadGate) drop(key string, slot *gateSlot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(g.slots, key)
	}
}
