// Package history keeps the deduplicated, most-recent-first list of searched
// cities. The persisted value is authoritative; the in-memory list is
// refreshed from it on Load and before every Append.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/lox/cityweather/internal/metrics"
)

// Key is the store key holding the JSON-encoded list of city names.
const Key = "searchHistory"

var ErrBlankCity = errors.New("blank city name")

// KV is the persisted key/value string store backing the history.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type History struct {
	kv KV

	mu    sync.Mutex
	items []string
}

func New(kv KV) *History {
	return &History{kv: kv}
}

// Load replaces the in-memory list with the persisted one and returns a copy.
// A missing key yields an empty list. An undecodable value is logged and
// treated as empty.
func (h *History) Load(ctx context.Context) ([]string, error) {
	items, err := h.read(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = items
	return slices.Clone(h.items), nil
}

// read returns the persisted list, deduplicated.
func (h *History) read(ctx context.Context) ([]string, error) {
	raw, ok, err := h.kv.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var items []string
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			log.Printf("history: discarding undecodable %s value: %v", Key, err)
			items = nil
		}
	}
	return dedupe(items), nil
}

// Contains reports whether city is already in the list. Matching is exact.
func (h *History) Contains(city string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Contains(h.items, city)
}

// Append inserts city at the front of the list unless it is already present,
// then persists the full list in display order. It reports whether the city
// was added. On a persistence failure the insertion is undone.
//
// The persisted list is re-read first, so writes and clears made by another
// process sharing the store are kept.
func (h *History) Append(ctx context.Context, city string) (bool, error) {
	if strings.TrimSpace(city) == "" {
		return false, ErrBlankCity
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	stored, err := h.read(ctx)
	if err != nil {
		metrics.HistoryAppendsTotal.WithLabelValues("error").Inc()
		return false, err
	}
	h.items = stored

	if slices.Contains(h.items, city) {
		metrics.HistoryAppendsTotal.WithLabelValues("duplicate").Inc()
		log.Printf("history: %q already present", city)
		return false, nil
	}

	prev := h.items
	h.items = append([]string{city}, h.items...)
	if err := h.persist(ctx); err != nil {
		h.items = prev
		metrics.HistoryAppendsTotal.WithLabelValues("error").Inc()
		return false, err
	}

	metrics.HistoryAppendsTotal.WithLabelValues("added").Inc()
	log.Printf("history: added %q", city)
	return true, nil
}

// Clear empties the list and removes the persisted value.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.kv.Delete(ctx, Key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	h.items = nil
	return nil
}

// Items returns a snapshot of the list, most recent first.
func (h *History) Items() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.items)
}

// persist must be called with h.mu held.
func (h *History) persist(ctx context.Context) error {
	items := h.items
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := h.kv.Set(ctx, Key, string(b)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// dedupe keeps the first occurrence of each name, preserving order.
func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || slices.Contains(out, it) {
			continue
		}
		out = append(out, it)
	}
	return out
}
