package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/internal/upload"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

func TestSuccessfulResultPassesThroughUnchanged(t *testing.T) {
	r := New(logger.NewTestLogger())
	in := &models.OcrResult{
		Success: true,
		RawText: "Total $42.00",
		Blocks:  []models.Block{{Text: "Total $42.00", Confidence: 0.97}},
	}

	var lines []string
	out, err := r.Reconcile(in, nil, "", func(msg string) { lines = append(lines, msg) })
	require.NoError(t, err)
	assert.Same(t, in, out)
	assert.Empty(t, lines)

	// Idempotence: reconciling the output again changes nothing.
	again, err := r.Reconcile(out, nil, "ignored stream text", nil)
	require.NoError(t, err)
	assert.Same(t, out, again)
}

func TestEmptySuccessfulResultGetsStreamedText(t *testing.T) {
	r := New(logger.NewTestLogger())
	in := &models.OcrResult{Success: true, RawText: "", Blocks: []models.Block{}}

	var lines []string
	out, err := r.Reconcile(in, nil, "Total $42.00\n", func(msg string) { lines = append(lines, msg) })
	require.NoError(t, err)

	assert.Equal(t, "Total $42.00\n", out.RawText)
	assert.True(t, out.Recovered)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "substituted")

	// Input is not mutated.
	assert.Equal(t, "", in.RawText)
}

func TestWhitespaceOnlyTextCountsAsEmpty(t *testing.T) {
	r := New(nil)
	in := &models.OcrResult{Success: true, RawText: "  \n\t "}

	out, err := r.Reconcile(in, nil, "Item A\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "Item A\n", out.RawText)
	assert.True(t, out.Recovered)
}

func TestErrorWithStreamedTextSynthesizesResult(t *testing.T) {
	r := New(logger.NewTestLogger())

	out, err := r.Reconcile(nil, upload.ErrNetwork, "Item A\nItem B\n", nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.True(t, out.Recovered)
	assert.Equal(t, "Item A\nItem B\n", out.RawText)
}

func TestErrorWithoutStreamedTextPropagates(t *testing.T) {
	r := New(nil)

	out, err := r.Reconcile(nil, upload.ErrNetwork, "", nil)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, upload.ErrNetwork)

	out, err = r.Reconcile(nil, upload.ErrTimeout, "   \n ", nil)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, upload.ErrTimeout)
}

func TestEmptySuccessWithNoStreamedTextStaysEmpty(t *testing.T) {
	r := New(nil)
	in := &models.OcrResult{Success: true, RawText: "", Blocks: []models.Block{}}

	out, err := r.Reconcile(in, nil, "", nil)
	require.NoError(t, err)
	assert.Same(t, in, out)
	assert.False(t, out.Recovered)
}
