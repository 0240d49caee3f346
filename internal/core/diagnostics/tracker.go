// Package diagnostics aggregates recurring adapter-side failures so that
// a caller driving many operations doesn't drown in repeated identical
// AdapterError/ProtocolError occurrences. It is a direct generalization
// of caboose-desktop's exceptions.Tracker: the same fingerprint-and-count
// shape, rekeyed from Rails backtraces onto DAP command/message pairs.
package diagnostics

import (
	"crypto/md5"
	"fmt"
	"sync"
	"time"
)

// Occurrence is an aggregated record of a recurring adapter failure.
type Occurrence struct {
	Fingerprint string    `json:"fingerprint"`
	Command     string    `json:"command"`
	Message     string    `json:"message"`
	SessionID   string    `json:"sessionId"`
	Count       int       `json:"count"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Tracker deduplicates AdapterError/ProtocolError occurrences per
// session, same pruning policy as exceptions.Tracker: once more than
// maxCount fingerprints are held, the entries with the earliest
// FirstSeen are dropped until 90% of maxCount remain.
type Tracker struct {
	mu          sync.RWMutex
	occurrences map[string]*Occurrence
	maxCount    int
}

// NewTracker creates a Tracker retaining up to maxCount unique
// fingerprints; maxCount <= 0 defaults to 1000, matching the teacher.
func NewTracker(maxCount int) *Tracker {
	if maxCount <= 0 {
		maxCount = 1000
	}
	return &Tracker{
		occurrences: make(map[string]*Occurrence),
		maxCount:    maxCount,
	}
}

// Track records one occurrence of an adapter failure for sessionID.
func (t *Tracker) Track(sessionID, command, message string) *Occurrence {
	fingerprint := fingerprint(command, message)

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.occurrences[fingerprint]; ok {
		existing.Count++
		existing.LastSeen = time.Now()
		return existing
	}

	now := time.Now()
	occ := &Occurrence{
		Fingerprint: fingerprint,
		Command:     command,
		Message:     message,
		SessionID:   sessionID,
		Count:       1,
		FirstSeen:   now,
		LastSeen:    now,
	}
	t.occurrences[fingerprint] = occ

	if len(t.occurrences) > t.maxCount {
		t.pruneOldest()
	}
	return occ
}

// All returns every tracked occurrence.
func (t *Tracker) All() []*Occurrence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*Occurrence, 0, len(t.occurrences))
	for _, occ := range t.occurrences {
		result = append(result, occ)
	}
	return result
}

// Clear removes all tracked occurrences, called on session termination
// so a long-running registry doesn't carry diagnostics past the session
// that produced them.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.occurrences = make(map[string]*Occurrence)
}

// pruneOldest drops the occurrence with the earliest FirstSeen until the
// map is back at 90% of capacity.
func (t *Tracker) pruneOldest() {
	target := t.maxCount * 9 / 10
	for len(t.occurrences) > target {
		var oldestKey string
		var oldestTime time.Time
		first := true
		for k, occ := range t.occurrences {
			if first || occ.FirstSeen.Before(oldestTime) {
				oldestKey = k
				oldestTime = occ.FirstSeen
				first = false
			}
		}
		if oldestKey == "" {
			return
		}
		delete(t.occurrences, oldestKey)
	}
}

func fingerprint(command, message string) string {
	data := []byte(command + ":" + message)
	sum := md5.Sum(data)
	return fmt.Sprintf("%x", sum)
}
