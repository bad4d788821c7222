// Package watchdog infers the coarse job phase from backend log text
// and fills stream silences with synthetic status lines so the user can
// tell "still computing" from "hung".
package watchdog

import (
	"sync"
	"time"

	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

// reassurance pools, one per busy phase. Indexed by how many synthetic
// lines have fired this job so consecutive lines cycle instead of
// repeating verbatim.
var reassurance = map[models.JobPhase][]string{
	models.PhaseAwaitingResponse: {
		"Backend received the image, waiting for the engine to pick it up...",
		"Still waiting on the OCR engine...",
		"Request is queued, the engine can take a while on first load...",
	},
	models.PhaseRecognizing: {
		"Text recognition in progress...",
		"Still recognizing characters, large images take longer...",
		"The model is working through the image...",
	},
	models.PhaseLayout: {
		"Reconstructing document layout...",
		"Grouping text blocks into rows and columns...",
		"Almost there, assembling the final text...",
	},
}

// Engine drives phase transitions from observed log lines and emits at
// most one synthetic entry per silence window while the job is busy.
type Engine struct {
	job       *models.Job
	rules     []Rule
	tick      time.Duration
	threshold time.Duration
	emit      func(models.LogEntry)
	log       logger.Logger

	mu       sync.Mutex
	lastReal time.Time
	fired    int
	started  bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New builds an engine for one job. emit receives the synthetic
// entries; they carry Synthetic=true so consumers can tell them from
// real backend output.
func New(job *models.Job, rules []Rule, tick, threshold time.Duration, emit func(models.LogEntry), log logger.Logger) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		job:       job,
		rules:     rules,
		tick:      tick,
		threshold: threshold,
		emit:      emit,
		log:       log,
		lastReal:  time.Now(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Observe feeds one log entry to the engine. Real entries reset the
// silence clock and may advance the phase; synthetic entries are
// ignored so the watchdog cannot keep itself alive.
func (e *Engine) Observe(entry models.LogEntry) {
	if entry.Synthetic {
		return
	}

	e.mu.Lock()
	e.lastReal = time.Now()
	e.mu.Unlock()

	if phase := MatchPhase(e.rules, entry.Message); phase != "" {
		if e.job.SetPhase(phase) {
			e.log.Debug("phase advanced",
				logger.String("jobId", e.job.ID),
				logger.String("phase", string(phase)),
			)
		}
	}
}

// Start launches the periodic inspection loop. Stop it with Stop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.tick)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case now := <-ticker.C:
				e.inspect(now)
			}
		}
	}()
}

// Stop halts the loop. Safe to call any number of times and on every
// exit path; returns once the loop goroutine has finished.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		<-e.done
	}
}

// inspect fires at most one synthetic entry when the real stream has
// been silent past the threshold during a busy phase, then resets the
// silence clock so the next line is a full window away.
func (e *Engine) inspect(now time.Time) {
	phase := e.job.Phase()
	if !phase.Busy() {
		return
	}

	e.mu.Lock()
	if now.Sub(e.lastReal) < e.threshold {
		e.mu.Unlock()
		return
	}
	e.lastReal = now
	n := e.fired
	e.fired++
	e.mu.Unlock()

	pool := reassurance[phase]
	entry := models.LogEntry{
		Timestamp: now,
		Message:   pool[n%len(pool)],
		Synthetic: true,
	}
	e.emit(entry)
}
