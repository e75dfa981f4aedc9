package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

const ocrInstruction = "Extract all readable text from this image. Return only the text, preserving line breaks. If there is no text, describe the image in one sentence."

// MaxImageBytes bounds uploaded images.
const MaxImageBytes = 10 << 20

// Describer is a vision-capable model.
type Describer interface {
	Describe(ctx context.Context, instruction string, data []byte, mimeType string) (string, error)
}

// OCRService turns an image into text through a vision model.
type OCRService struct {
	vision  Describer
	timeout time.Duration
	log     *logger.Logger
}

func NewOCRService(vision Describer, log *logger.Logger) *OCRService {
	if log == nil {
		log = logger.NewNop()
	}
	return &OCRService{vision: vision, timeout: DefaultModelTimeout, log: log}
}

// WithTimeout bounds each vision model call.
func (o *OCRService) WithTimeout(d time.Duration) *OCRService {
	if d > 0 {
		o.timeout = d
	}
	return o
}

// ExtractText returns the text found in data, which must be an image.
func (o *OCRService) ExtractText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: image is empty", models.ErrInvalidInput)
	}
	if len(data) > MaxImageBytes {
		return "", fmt.Errorf("%w: image is larger than %d bytes", models.ErrInvalidInput, MaxImageBytes)
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", fmt.Errorf("%w: expected an image, got %s", models.ErrInvalidInput, mime.String())
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	text, err := o.vision.Describe(callCtx, ocrInstruction, data, mime.String())
	if err != nil {
		if !errors.Is(err, models.ErrExternalService) {
			err = fmt.Errorf("%w: %v", models.ErrExternalService, err)
		}
		return "", err
	}
	o.log.Debug("image text extracted", "mime", mime.String(), "chars", len(text))
	return strings.TrimSpace(text), nil
}
