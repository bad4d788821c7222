package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipswaps/paddle-ocr/internal/models"
)

// fakeStreams records subscription lifecycle so tests can verify there
// are no leaks on any exit path.
type fakeStreams struct {
	opened int32
	closed int32
}

func (f *fakeStreams) Subscribe(onEntry func(models.LogEntry)) func() {
	atomic.AddInt32(&f.opened, 1)
	return func() { atomic.AddInt32(&f.closed, 1) }
}

func testImage(size int) models.NormalizedImage {
	return models.NormalizedImage{
		Name:      "receipt.jpg",
		MediaType: "image/jpeg",
		Data:      []byte(strings.Repeat("x", size)),
	}
}

func TestSubmitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ocr", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "receipt.jpg", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"raw_text":"Total $42.00","blocks":[{"text":"Total $42.00","box":[[0,0],[10,0],[10,5],[0,5]],"conf":0.98}],"row_count":1}`)
	}))
	defer srv.Close()

	streams := &fakeStreams{}
	c := New(srv.URL, 5*time.Second, streams, nil)
	job := models.NewJob()

	var lines []string
	res, err := c.Submit(context.Background(), testImage(4096), job, Callbacks{
		OnLog: func(msg string) { lines = append(lines, msg) },
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Total $42.00", res.RawText)
	require.Len(t, res.Blocks, 1)

	// Byte transfer done, no phase marker seen yet: awaiting-response.
	assert.Equal(t, models.PhaseAwaitingResponse, job.Phase())

	// 0% through 100% once each, plus the upload-finished line.
	var pcts []string
	for _, l := range lines {
		if strings.Contains(l, "%") {
			pcts = append(pcts, l)
		}
	}
	require.Len(t, pcts, 11)
	assert.Contains(t, pcts[0], "0%")
	assert.Contains(t, pcts[10], "100%")
	seen := map[string]bool{}
	for _, p := range pcts {
		assert.False(t, seen[p], "duplicate progress line %q", p)
		seen[p] = true
	}
	assert.Contains(t, lines[len(lines)-1], "waiting for backend response")

	assert.EqualValues(t, 1, streams.opened)
	assert.EqualValues(t, 1, streams.closed)
}

func TestSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"File type not allowed"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	streams := &fakeStreams{}
	c := New(srv.URL, 5*time.Second, streams, nil)

	_, err := c.Submit(context.Background(), testImage(64), models.NewJob(), Callbacks{})
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusBadRequest, serverErr.Status)
	assert.Contains(t, serverErr.Body, "File type not allowed")

	assert.EqualValues(t, 1, streams.closed, "subscription must be torn down on HTTP error")
}

func TestSubmitNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	streams := &fakeStreams{}
	c := New(srv.URL, 5*time.Second, streams, nil)

	_, err := c.Submit(context.Background(), testImage(64), models.NewJob(), Callbacks{})
	require.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.EqualValues(t, 1, streams.closed)
}

func TestSubmitTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	streams := &fakeStreams{}
	c := New(srv.URL, 100*time.Millisecond, streams, nil)

	start := time.Now()
	_, err := c.Submit(context.Background(), testImage(64), models.NewJob(), Callbacks{})
	require.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.EqualValues(t, 1, streams.closed, "subscription must be torn down on timeout")
}

func TestSubmitMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>definitely not json</html>")
	}))
	defer srv.Close()

	streams := &fakeStreams{}
	c := New(srv.URL, 5*time.Second, streams, nil)

	_, err := c.Submit(context.Background(), testImage(64), models.NewJob(), Callbacks{})
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.EqualValues(t, 1, streams.closed)
}

func TestProgressReaderSingleChunk(t *testing.T) {
	var steps []int
	pr := &progressReader{
		r:      strings.NewReader(strings.Repeat("a", 100)),
		total:  100,
		onStep: func(pct int) { steps = append(steps, pct) },
	}
	buf := make([]byte, 100)
	n, err := pr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, steps)
}

func TestProgressReaderUnevenChunks(t *testing.T) {
	var steps []int
	pr := &progressReader{
		r:      strings.NewReader(strings.Repeat("a", 100)),
		total:  100,
		onStep: func(pct int) { steps = append(steps, pct) },
	}
	for _, size := range []int{7, 7, 7, 30, 4, 45} {
		buf := make([]byte, size)
		_, err := pr.Read(buf)
		require.NoError(t, err)
	}
	// 7,14,21,51,55,100 -> thresholds crossed exactly once each.
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, steps)

	_, err := pr.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
