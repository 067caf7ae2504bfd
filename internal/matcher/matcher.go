// Package matcher decides which enrolled identity, if any, a probe embedding belongs to.
package matcher

import (
	"context"
	"sort"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// MatchStatus is the outcome of a match
type MatchStatus string

const (
	StatusMatched MatchStatus = "MATCHED"
	StatusUnknown MatchStatus = "UNKNOWN"
	StatusNoFace  MatchStatus = "NO_FACE"
)

// MatchResult carries the matched identity for StatusMatched only
type MatchResult struct {
	Status   MatchStatus
	Identity *domain.Identity
	Score    float64
}

// Matched reports whether an enrolled identity was found
func (r MatchResult) Matched() bool {
	return r.Status == StatusMatched
}

// Key returns the matched identity key, or the status name when nothing matched
func (r MatchResult) Key() string {
	if r.Identity == nil {
		return string(r.Status)
	}
	return r.Identity.Key
}

// Matcher scans the gallery in ascending key order and stops at the first
// entry the Comparator accepts. Earlier keys win when several would match.
// A full scan costs O(N·d); WithIndex narrows it to the k nearest, widening k
// until a neighbour falls outside the comparator so the key order still holds.
type Matcher struct {
	comparator Comparator
	index      *Index
	candidates int
}

// Option configures a Matcher
type Option func(*Matcher)

// WithIndex enables candidate narrowing through an HNSW index
func WithIndex(index *Index, k int) Option {
	return func(m *Matcher) {
		m.index = index
		m.candidates = k
	}
}

func New(comparator Comparator, opts ...Option) *Matcher {
	m := &Matcher{comparator: comparator}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Comparator returns the configured comparator
func (m *Matcher) Comparator() Comparator {
	return m.comparator
}

// Index returns the candidate index, nil when disabled
func (m *Matcher) Index() *Index {
	return m.index
}

// Match compares probes[0] against the gallery. Extra probes are ignored and
// the gallery slice is not modified.
func (m *Matcher) Match(ctx context.Context, probes []domain.Embedding, gallery []domain.GalleryEntry) (MatchResult, error) {
	if len(probes) == 0 {
		return MatchResult{Status: StatusNoFace}, nil
	}
	probe := probes[0]

	ordered := m.scanOrder(probe, gallery)
	for i, entry := range ordered {
		// cheap cancellation check for very large galleries
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return MatchResult{}, err
			}
		}
		if m.comparator.Matches(probe, entry.Embedding) {
			identity := entry.Identity
			return MatchResult{
				Status:   StatusMatched,
				Identity: &identity,
				Score:    m.comparator.Score(probe, entry.Embedding),
			}, nil
		}
	}

	return MatchResult{Status: StatusUnknown}, nil
}

// scanOrder returns the entries to compare, sorted by key. The index is only
// trusted when it covers the whole gallery. k doubles while every returned
// neighbour is accepted by the comparator, so no qualifying key with a lower
// sort order can sit just outside the candidate set.
func (m *Matcher) scanOrder(probe domain.Embedding, gallery []domain.GalleryEntry) []domain.GalleryEntry {
	if m.index == nil || m.candidates <= 0 || len(gallery) <= m.candidates || m.index.Len() != len(gallery) {
		return sortedByKey(gallery)
	}

	byKey := make(map[string]domain.GalleryEntry, len(gallery))
	for _, e := range gallery {
		byKey[e.Identity.Key] = e
	}

	for k := m.candidates; k < len(gallery); k *= 2 {
		keys := m.index.Candidates(probe, k)
		if len(keys) == 0 {
			break
		}

		ordered := make([]domain.GalleryEntry, 0, len(keys))
		saturated := true
		for _, key := range keys {
			e, ok := byKey[key]
			if !ok {
				return sortedByKey(gallery)
			}
			ordered = append(ordered, e)
			if !m.comparator.Matches(probe, e.Embedding) {
				saturated = false
			}
		}
		if !saturated {
			return sortedByKey(ordered)
		}
		if len(keys) < k {
			break
		}
	}

	return sortedByKey(gallery)
}

func sortedByKey(entries []domain.GalleryEntry) []domain.GalleryEntry {
	ordered := make([]domain.GalleryEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Identity.Key < ordered[j].Identity.Key
	})
	return ordered
}
