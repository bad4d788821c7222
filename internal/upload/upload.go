// Package upload performs the multipart transfer to the OCR backend.
// It owns the job's only hard deadline and guarantees the push-channel
// subscription is open for exactly the duration of the call.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

// maxErrorBody bounds how much of an error reply is kept for messages.
const maxErrorBody = 512

// StreamOpener opens a push-channel subscription and returns its
// teardown func.
type StreamOpener interface {
	Subscribe(onEntry func(models.LogEntry)) func()
}

// Callbacks carry the two narrative feeds out of a Submit call:
// progress lines generated here, and entries arriving on the push
// channel while the call is in flight.
type Callbacks struct {
	OnLog   func(msg string)
	OnEntry func(e models.LogEntry)
}

type Coordinator struct {
	endpoint string
	timeout  time.Duration
	streams  StreamOpener
	client   *http.Client
	log      logger.Logger
}

// New builds a coordinator posting to backendURL's /ocr endpoint.
// timeout bounds the whole call, byte transfer plus response wait.
func New(backendURL string, timeout time.Duration, streams StreamOpener, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		endpoint: strings.TrimRight(backendURL, "/") + "/ocr",
		timeout:  timeout,
		streams:  streams,
		client:   &http.Client{},
		log:      log,
	}
}

// Submit uploads the image and waits for the terminal OCR response.
// Progress is reported at 0%, every 10% step and 100%, never twice for
// the same step. Once the body is fully sent the job moves to
// awaiting-response, which is what lets the watchdog distinguish
// "still sending" from "sent, waiting on compute".
func (c *Coordinator) Submit(ctx context.Context, img models.NormalizedImage, job *models.Job, cb Callbacks) (*models.OcrResult, error) {
	if cb.OnLog == nil {
		cb.OnLog = func(string) {}
	}
	if cb.OnEntry == nil {
		cb.OnEntry = func(models.LogEntry) {}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	unsubscribe := c.streams.Subscribe(cb.OnEntry)
	defer unsubscribe()

	body, contentType, err := encodeMultipart(img)
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	total := int64(body.Len())

	job.SetPhase(models.PhaseUploading)
	cb.OnLog(fmt.Sprintf("Uploading %s: 0%%", img.Name))

	reader := &progressReader{
		r:     body,
		total: total,
		onStep: func(pct int) {
			cb.OnLog(fmt.Sprintf("Uploading %s: %d%%", img.Name, pct))
			if pct == 100 {
				job.SetPhase(models.PhaseAwaitingResponse)
				cb.OnLog("Upload finished, waiting for backend response...")
			}
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = total

	resp, err := c.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err):
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		case errors.Is(ctx.Err(), context.Canceled):
			// A new job invalidated this one.
			return nil, fmt.Errorf("job cancelled: %w", context.Canceled)
		default:
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var result models.OcrResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c.log.Info("ocr response received",
		logger.String("jobId", job.ID),
		logger.Bool("success", result.Success),
		logger.Int("blocks", len(result.Blocks)),
	)
	return &result, nil
}

func encodeMultipart(img models.NormalizedImage) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", img.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// progressReader counts bytes handed to the transport and reports each
// crossed 10% step exactly once.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	lastPct int
	onStep  func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		for step := p.lastPct + 10; step <= pct; step += 10 {
			p.onStep(step)
			p.lastPct = step
		}
	}
	return n, err
}
