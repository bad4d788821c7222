package watchdog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipswaps/paddle-ocr/internal/models"
)

func newEngine(t *testing.T, job *models.Job, emitted *[]models.LogEntry) *Engine {
	t.Helper()
	e := New(job, nil, time.Second, 3*time.Second, func(entry models.LogEntry) {
		*emitted = append(*emitted, entry)
	}, nil)
	return e
}

func real(msg string) models.LogEntry {
	return models.LogEntry{Timestamp: time.Now(), Message: msg}
}

func TestPhaseTransitionsFromLogText(t *testing.T) {
	job := models.NewJob()
	job.SetPhase(models.PhaseAwaitingResponse)
	e := newEngine(t, job, &[]models.LogEntry{})

	e.Observe(real("[OCR INFO] Starting analysis..."))
	assert.Equal(t, models.PhaseRecognizing, job.Phase())

	e.Observe(real("[OCR INFO] Detected 17 text blocks. Processing layout..."))
	assert.Equal(t, models.PhaseLayout, job.Phase())

	// Phases never move backwards on a late-arriving earlier marker.
	e.Observe(real("[OCR INFO] Starting analysis..."))
	assert.Equal(t, models.PhaseLayout, job.Phase())

	e.Observe(real("[OCR INFO] Saved to database ID: 7"))
	assert.Equal(t, models.PhaseComplete, job.Phase())
}

func TestFailureMarkerFromAnyPhase(t *testing.T) {
	job := models.NewJob()
	job.SetPhase(models.PhaseRecognizing)
	e := newEngine(t, job, &[]models.LogEntry{})

	e.Observe(real("[ERROR] OCR Processing Failed: engine not initialized"))
	assert.Equal(t, models.PhaseFailed, job.Phase())
}

func TestSilenceEmitsOneSyntheticPerWindow(t *testing.T) {
	job := models.NewJob()
	job.SetPhase(models.PhaseAwaitingResponse)

	var emitted []models.LogEntry
	e := newEngine(t, job, &emitted)

	base := time.Now()
	e.mu.Lock()
	e.lastReal = base
	e.mu.Unlock()

	// Under threshold: quiet.
	e.inspect(base.Add(2 * time.Second))
	assert.Empty(t, emitted)

	// Threshold crossed: exactly one line, tagged synthetic.
	e.inspect(base.Add(3 * time.Second))
	require.Len(t, emitted, 1)
	assert.True(t, emitted[0].Synthetic)

	// Clock was reset: the next second is inside the new window.
	e.inspect(base.Add(4 * time.Second))
	require.Len(t, emitted, 1)

	// Another full window elapses: one more.
	e.inspect(base.Add(6 * time.Second))
	require.Len(t, emitted, 2)
}

func TestSyntheticLinesCycleThroughPool(t *testing.T) {
	job := models.NewJob()
	job.SetPhase(models.PhaseRecognizing)

	var emitted []models.LogEntry
	e := newEngine(t, job, &emitted)

	now := time.Now()
	for i := 0; i < 4; i++ {
		now = now.Add(3 * time.Second)
		e.inspect(now)
	}
	require.Len(t, emitted, 4)
	assert.NotEqual(t, emitted[0].Message, emitted[1].Message)
	assert.NotEqual(t, emitted[1].Message, emitted[2].Message)
	// Pool of three wraps around.
	assert.Equal(t, emitted[0].Message, emitted[3].Message)
}

func TestNoSyntheticOutsideBusyPhases(t *testing.T) {
	for _, phase := range []models.JobPhase{models.PhaseIdle, models.PhaseUploading, models.PhaseComplete, models.PhaseFailed} {
		job := models.NewJob()
		if phase != models.PhaseIdle {
			if phase == models.PhaseComplete || phase == models.PhaseFailed {
				job.SetPhase(models.PhaseAwaitingResponse)
			}
			job.SetPhase(phase)
		}

		var emitted []models.LogEntry
		e := newEngine(t, job, &emitted)
		e.inspect(time.Now().Add(time.Hour))
		assert.Empty(t, emitted, "phase %s must not produce synthetic lines", phase)
	}
}

func TestSyntheticEntriesDoNotResetSilenceClock(t *testing.T) {
	job := models.NewJob()
	job.SetPhase(models.PhaseAwaitingResponse)

	var emitted []models.LogEntry
	e := newEngine(t, job, &emitted)

	base := time.Now()
	e.mu.Lock()
	e.lastReal = base
	e.mu.Unlock()

	// Feeding a synthetic entry back in must not count as activity.
	e.Observe(models.LogEntry{Timestamp: base.Add(2 * time.Second), Message: "still working...", Synthetic: true})

	e.inspect(base.Add(3 * time.Second))
	assert.Len(t, emitted, 1)
}

func TestStartStopIdempotent(t *testing.T) {
	job := models.NewJob()
	e := New(job, nil, 10*time.Millisecond, 30*time.Millisecond, func(models.LogEntry) {}, nil)
	e.Start()
	e.Start()
	e.Stop()
	e.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	e := New(models.NewJob(), nil, time.Second, 3*time.Second, func(models.LogEntry) {}, nil)
	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}

func TestLoadRulesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- match: "stage 1 of \\d+"
  phase: recognizing
- match: "stage 2 of \\d+"
  phase: layout
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, models.PhaseRecognizing, MatchPhase(rules, "engine: stage 1 of 3 running"))
	assert.Equal(t, models.PhaseLayout, MatchPhase(rules, "engine: STAGE 2 of 3 running"))
	assert.Equal(t, models.JobPhase(""), MatchPhase(rules, "unrelated"))
}

func TestCompileRulesRejectsBadInput(t *testing.T) {
	_, err := CompileRules([]RuleSpec{{Match: "ok", Phase: "never-heard-of-it"}})
	assert.Error(t, err)

	_, err = CompileRules([]RuleSpec{{Match: "([", Phase: string(models.PhaseLayout)}})
	assert.Error(t, err)
}
