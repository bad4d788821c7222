package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobPhase is the coarse backend processing stage, inferred client-side
// from the log narrative. Transitions only move forward, except that
// PhaseFailed is reachable from any non-terminal phase.
type JobPhase string

const (
	PhaseIdle             JobPhase = "idle"
	PhaseUploading        JobPhase = "uploading"
	PhaseAwaitingResponse JobPhase = "awaiting-response"
	PhaseRecognizing      JobPhase = "recognizing"
	PhaseLayout           JobPhase = "layout"
	PhaseComplete         JobPhase = "complete"
	PhaseFailed           JobPhase = "failed"
)

// Busy reports whether the backend is expected to be producing output
// in this phase. Watchdog reassurance lines are only allowed while busy.
func (p JobPhase) Busy() bool {
	switch p {
	case PhaseAwaitingResponse, PhaseRecognizing, PhaseLayout:
		return true
	}
	return false
}

// Terminal reports whether the phase can no longer advance.
func (p JobPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// phaseRank orders phases for the forward-only transition rule.
var phaseRank = map[JobPhase]int{
	PhaseIdle:             0,
	PhaseUploading:        1,
	PhaseAwaitingResponse: 2,
	PhaseRecognizing:      3,
	PhaseLayout:           4,
	PhaseComplete:         5,
	PhaseFailed:           5,
}

// LogEntry is one line of the job narrative. Synthetic marks watchdog
// reassurance lines so the UI and tests can tell them apart from real
// backend output.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// RawImage is the user-selected file, untouched.
type RawImage struct {
	Name      string
	MediaType string
	Data      []byte
}

// NormalizedImage is a RawImage guaranteed to be in a universally
// decodable raster format with orientation already applied.
type NormalizedImage struct {
	Name      string
	MediaType string
	Data      []byte
	Width     int
	Height    int
}

// Job is one end-to-end recognition request. It owns the ordered log
// sequence and the phase flag; components mutate both only through the
// methods here. External consumers read snapshots.
type Job struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	phase    JobPhase
	entries  []LogEntry
	streamed []byte
}

func NewJob() *Job {
	return &Job{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		phase:     PhaseIdle,
	}
}

// Phase returns the current phase.
func (j *Job) Phase() JobPhase {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase
}

// SetPhase applies the forward-only transition rule: a transition is
// accepted only if it advances the phase, or targets PhaseFailed from a
// non-terminal phase. Returns whether the transition took effect.
func (j *Job) SetPhase(p JobPhase) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.phase.Terminal() {
		return false
	}
	if p == PhaseFailed {
		j.phase = PhaseFailed
		return true
	}
	if phaseRank[p] <= phaseRank[j.phase] {
		return false
	}
	j.phase = p
	return true
}

// Append adds an entry to the job log. Entries are append-only and
// never mutated afterwards.
func (j *Job) Append(e LogEntry) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

// Entries returns a snapshot copy of the log sequence.
func (j *Job) Entries() []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]LogEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// AccumulateText appends partial recognized text observed on the push
// channel, so the reconciler can recover it if the terminal call fails.
func (j *Job) AccumulateText(s string) {
	j.mu.Lock()
	j.streamed = append(j.streamed, s...)
	j.mu.Unlock()
}

// StreamedText returns all text accumulated from the push channel.
func (j *Job) StreamedText() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return string(j.streamed)
}
