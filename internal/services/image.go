package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"damagedetect/internal/models"

	"github.com/gabriel-vasile/mimetype"
)

// SupportedTypes are the upload content types accepted for inference.
var SupportedTypes = []string{"image/jpeg", "image/png"}

// DecodeImage sniffs and decodes an uploaded JPEG or PNG. Anything else, and
// any decode error, is a ProcessingFailure.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", models.NewError(models.ProcessingFailure, errors.New("uploaded file is empty"))
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), SupportedTypes...) {
		return nil, "", models.Errorf(models.ProcessingFailure, "unsupported file type %s", mtype.String())
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", models.NewError(models.ProcessingFailure, fmt.Errorf("failed to decode image: %w", err))
	}
	return img, format, nil
}

// EncodeJPEG re-encodes img for display and storage.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
