// Package normalize converts user-selected images into a form the OCR
// backend can always decode: a baseline JPEG with visual orientation
// baked in, regardless of the container the file arrived in.
package normalize

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	// webp arrives from browser uploads but has no codec in imaging.
	_ "golang.org/x/image/webp"

	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

const jpegQuality = 85

// Sink receives the human-readable progress lines that make up the
// job narrative during normalization.
type Sink func(msg string)

type Normalizer struct {
	log logger.Logger
}

func New(log logger.Logger) *Normalizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Normalizer{log: log}
}

// Normalize decodes the raw image and re-encodes it as an oriented
// baseline JPEG. It never fails the pipeline: if the image cannot be
// decoded or re-encoded, the original bytes pass through unchanged and
// a warning is logged.
func (n *Normalizer) Normalize(raw models.RawImage, sink Sink) models.NormalizedImage {
	if sink == nil {
		sink = func(string) {}
	}

	mt := mimetype.Detect(raw.Data)
	sink(fmt.Sprintf("Selected %s (%d bytes, %s)", raw.Name, len(raw.Data), mt.String()))

	img, err := imaging.Decode(bytes.NewReader(raw.Data), imaging.AutoOrientation(true))
	if err != nil {
		n.log.Warn("image decode failed, uploading original bytes",
			logger.String("filename", raw.Name),
			logger.String("mediaType", mt.String()),
			logger.Error(err),
		)
		sink(fmt.Sprintf("Could not decode %s, uploading as-is", raw.Name))
		return passthrough(raw)
	}

	bounds := img.Bounds()
	sink(fmt.Sprintf("Image decoded: %dx%d", bounds.Dx(), bounds.Dy()))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		n.log.Warn("jpeg encode failed, uploading original bytes",
			logger.String("filename", raw.Name),
			logger.Error(err),
		)
		return passthrough(raw)
	}

	sink(fmt.Sprintf("Normalized to JPEG (%d bytes)", buf.Len()))

	return models.NormalizedImage{
		Name:      jpegName(raw.Name),
		MediaType: "image/jpeg",
		Data:      buf.Bytes(),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}
}

// passthrough hands the original file to the upload stage unchanged.
// Dimensions stay zero; nothing downstream depends on them.
func passthrough(raw models.RawImage) models.NormalizedImage {
	return models.NormalizedImage{
		Name:      raw.Name,
		MediaType: raw.MediaType,
		Data:      raw.Data,
	}
}

func jpegName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i] + ".jpg"
		}
		if name[i] == '/' || name[i] == '\\' {
			break
		}
	}
	return name + ".jpg"
}

// Dimensions reports the pixel size of an encoded image without a full
// decode. Used by the shell to validate uploads cheaply.
func Dimensions(data []byte) (w, h int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
