// Package orchestrator runs one recognition job end to end: normalize,
// upload, watch the push channel, reconcile. It owns the Job object and
// guarantees that starting a new job tears the previous one down.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/internal/normalize"
	"github.com/swipswaps/paddle-ocr/internal/reconcile"
	"github.com/swipswaps/paddle-ocr/internal/stream"
	"github.com/swipswaps/paddle-ocr/internal/upload"
	"github.com/swipswaps/paddle-ocr/internal/watchdog"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

// streamTextMarker tags push-channel lines that carry recognized text.
// The backend streams the final text through the log channel under this
// marker before the HTTP response lands, which is what makes partial
// recovery possible.
const streamTextMarker = "[STREAM_DATA]"

// Config tunes one Runner. Zero durations fall back to the defaults
// the stock backend is tuned for.
type Config struct {
	BackendURL       string
	StreamPath       string
	UploadTimeout    time.Duration
	WatchdogTick     time.Duration
	SilenceThreshold time.Duration
	Rules            []watchdog.Rule
}

func (c *Config) applyDefaults() {
	if c.StreamPath == "" {
		c.StreamPath = "/logs/stream"
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 180 * time.Second
	}
	if c.WatchdogTick <= 0 {
		c.WatchdogTick = time.Second
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 3 * time.Second
	}
	if c.Rules == nil {
		c.Rules = watchdog.DefaultRules()
	}
}

// Runner executes jobs one at a time.
type Runner struct {
	cfg        Config
	normalizer *normalize.Normalizer
	uploader   *upload.Coordinator
	reconciler *reconcile.Reconciler
	log        logger.Logger

	mu     sync.Mutex
	active *activeJob
}

type activeJob struct {
	cancel context.CancelFunc
	engine *watchdog.Engine
}

func New(cfg Config, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	cfg.applyDefaults()
	subscriber := stream.NewSubscriber(cfg.BackendURL, cfg.StreamPath, log.Named("stream"))
	return &Runner{
		cfg:        cfg,
		normalizer: normalize.New(log.Named("normalize")),
		uploader:   upload.New(cfg.BackendURL, cfg.UploadTimeout, subscriber, log.Named("upload")),
		reconciler: reconcile.New(log.Named("reconcile")),
		log:        log,
	}
}

// Run drives one job to its reconciled result. onEntry is invoked for
// every narrative line, real and synthetic, in delivery order. Starting
// a new job cancels the previous one and tears down its subscription
// and watchdog before any new resources are created.
func (r *Runner) Run(ctx context.Context, raw models.RawImage, onEntry func(models.LogEntry)) (*models.OcrResult, *models.Job, error) {
	if onEntry == nil {
		onEntry = func(models.LogEntry) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	job := models.NewJob()

	var (
		emitMu sync.Mutex
		engine *watchdog.Engine
	)
	// All narrative lines funnel through here so callbacks see a single
	// serialized sequence regardless of which goroutine produced them.
	// Cancelling the stream subscription does not drain its handler, so
	// one entry already in flight there may still invoke onEntry shortly
	// after Run returns. Job state tolerates this (mutex-guarded, read
	// via snapshots); onEntry callbacks must not assume Run returning
	// means the last callback has fired.
	emit := func(e models.LogEntry) {
		emitMu.Lock()
		defer emitMu.Unlock()
		job.Append(e)
		engine.Observe(e)
		if !e.Synthetic {
			if text, ok := extractStreamText(e.Message); ok {
				job.AccumulateText(text)
			}
		}
		onEntry(e)
	}
	emitText := func(msg string) {
		emit(models.LogEntry{Timestamp: time.Now(), Message: msg})
	}

	engine = watchdog.New(job, r.cfg.Rules, r.cfg.WatchdogTick, r.cfg.SilenceThreshold, emit, r.log.Named("watchdog"))

	r.takeOver(&activeJob{cancel: cancel, engine: engine})
	defer r.release(cancel, engine)

	r.log.Info("job started",
		logger.String("jobId", job.ID),
		logger.String("filename", raw.Name),
		logger.Int("bytes", len(raw.Data)),
	)

	engine.Start()

	normalized := r.normalizer.Normalize(raw, emitText)

	result, err := r.uploader.Submit(ctx, normalized, job, upload.Callbacks{
		OnLog:   emitText,
		OnEntry: emit,
	})

	final, ferr := r.reconciler.Reconcile(result, err, job.StreamedText(), emitText)
	if ferr != nil {
		job.SetPhase(models.PhaseFailed)
		emitText(fmt.Sprintf("Job failed: %v", ferr))
		r.log.Error("job failed", logger.String("jobId", job.ID), logger.Error(ferr))
		return nil, job, ferr
	}

	if final.Success {
		job.SetPhase(models.PhaseComplete)
		emitText("Job complete")
	} else {
		// Recovered partial result: visible as such, never a silent success.
		job.SetPhase(models.PhaseFailed)
		emitText("Job finished with a partial result recovered from the log stream")
	}

	r.log.Info("job finished",
		logger.String("jobId", job.ID),
		logger.Bool("success", final.Success),
		logger.Bool("recovered", final.Recovered),
		logger.Int("chars", len(final.RawText)),
	)
	return final, job, nil
}

// takeOver registers the new job's resources, first cancelling and
// stopping whatever the previous job left running.
func (r *Runner) takeOver(next *activeJob) {
	r.mu.Lock()
	prev := r.active
	r.active = next
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
		prev.engine.Stop()
	}
}

// release stops this job's resources unless a newer job already took
// over (in which case takeOver stopped them).
func (r *Runner) release(cancel context.CancelFunc, engine *watchdog.Engine) {
	cancel()
	engine.Stop()

	r.mu.Lock()
	if r.active != nil && r.active.engine == engine {
		r.active = nil
	}
	r.mu.Unlock()
}

// extractStreamText pulls recognized text out of a marker line. The
// text keeps its internal newlines; one newline is appended per line so
// consecutive fragments stay separated.
func extractStreamText(message string) (string, bool) {
	idx := strings.Index(message, streamTextMarker)
	if idx < 0 {
		return "", false
	}
	text := strings.TrimPrefix(message[idx+len(streamTextMarker):], " ")
	if text == "" {
		return "", false
	}
	return text + "\n", true
}
