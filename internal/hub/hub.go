// Package hub fans round and price events out to subscribed connections,
// grouped by symbol.
package hub

import (
	"context"
	"fmt"
	"sync"

	"priceArena/internal/ports"

	"golang.org/x/sync/errgroup"
)

// Conn is the write side of a subscriber. Implementations must be safe for
// concurrent WriteJSON calls.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Stats is a snapshot of the hub's counters.
type Stats struct {
	Subscribers int
	Published   uint64
	Delivered   uint64
	Dropped     uint64
}

// Hub tracks which connection watches which symbol and broadcasts events to
// them. Each connection watches exactly one symbol at a time; subscribing to a
// new one atomically replaces the old subscription.
type Hub struct {
	logger ports.Logger
	fanout int // Max concurrent writes per broadcast.

	mu         sync.Mutex
	subs       map[string]map[Conn]struct{}
	connSymbol map[Conn]string

	published uint64
	delivered uint64
	dropped   uint64
}

// NewHub creates a hub that delivers each broadcast with at most fanout
// concurrent writers.
func NewHub(logger ports.Logger, fanout int) (*Hub, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if fanout <= 0 {
		return nil, fmt.Errorf("fanout must be positive, got %d", fanout)
	}
	return &Hub{
		logger:     logger,
		fanout:     fanout,
		subs:       make(map[string]map[Conn]struct{}),
		connSymbol: make(map[Conn]string),
	}, nil
}

// Subscribe registers the connection for the symbol's events, replacing any
// previous subscription it held.
func (h *Hub) Subscribe(conn Conn, symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.connSymbol[conn]; ok {
		if prev == symbol {
			return
		}
		h.removeLocked(conn, prev)
	}
	if h.subs[symbol] == nil {
		h.subs[symbol] = make(map[Conn]struct{})
	}
	h.subs[symbol][conn] = struct{}{}
	h.connSymbol[conn] = symbol
}

// Unsubscribe removes the connection. Safe to call for an unknown connection.
func (h *Hub) Unsubscribe(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if symbol, ok := h.connSymbol[conn]; ok {
		h.removeLocked(conn, symbol)
	}
}

// removeLocked drops the connection from one symbol's set. Caller holds h.mu.
func (h *Hub) removeLocked(conn Conn, symbol string) {
	delete(h.connSymbol, conn)
	if set, ok := h.subs[symbol]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.subs, symbol)
		}
	}
}

// Symbol returns the symbol the connection currently watches.
func (h *Hub) Symbol(conn Conn) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.connSymbol[conn]
	return s, ok
}

// Publish broadcasts the event to every subscriber of the symbol and returns
// how many received it. Writes run concurrently, bounded by the hub's fanout
// limit, and never hold the hub lock. A connection whose write fails is
// dropped from the hub; its read loop handles the close.
func (h *Hub) Publish(ctx context.Context, symbol string, event *Event) int {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.subs[symbol]))
	for c := range h.subs[symbol] {
		conns = append(conns, c)
	}
	h.published++
	h.mu.Unlock()

	if len(conns) == 0 {
		return 0
	}

	var failedMu sync.Mutex
	var failed []Conn

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(h.fanout)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if err := conn.WriteJSON(event); err != nil {
				failedMu.Lock()
				failed = append(failed, conn)
				failedMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // Writers never return errors; failures are collected above.

	h.mu.Lock()
	for _, conn := range failed {
		if s, ok := h.connSymbol[conn]; ok {
			h.removeLocked(conn, s)
		}
	}
	delivered := len(conns) - len(failed)
	h.delivered += uint64(delivered)
	h.dropped += uint64(len(failed))
	h.mu.Unlock()

	if len(failed) > 0 {
		h.logger.Warn(ctx, "Dropped subscribers after failed writes", map[string]interface{}{
			"symbol": symbol, "type": event.Type, "dropped": len(failed)})
	}
	return delivered
}

// PublishAll broadcasts the event to every subscriber regardless of symbol.
// Used for hub-wide notices such as shutdown.
func (h *Hub) PublishAll(ctx context.Context, event *Event) int {
	h.mu.Lock()
	symbols := make([]string, 0, len(h.subs))
	for s := range h.subs {
		symbols = append(symbols, s)
	}
	h.mu.Unlock()

	delivered := 0
	for _, s := range symbols {
		delivered += h.Publish(ctx, s, event)
	}
	return delivered
}

// Stats returns a snapshot of the hub's counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Subscribers: len(h.connSymbol),
		Published:   h.published,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
	}
}
