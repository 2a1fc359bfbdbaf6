//go:build !gocv
// +build !gocv

package vision

import (
	"context"

	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// Preprocessor — заглушка для сборки без OpenCV.
type Preprocessor struct{}

// NewPreprocessor создаёт препроцессор-заглушку (без OpenCV).
func NewPreprocessor(cfg config.DetectorConfig) *Preprocessor {
	_ = cfg
	return &Preprocessor{}
}

// Mask возвращает ошибку, если сборка без тега gocv.
func (p *Preprocessor) Mask(frame port.Frame) (port.Frame, error) {
	_ = frame
	return nil, entity.ErrGoCVDisabled
}

type ContourExtractor struct{}

func NewContourExtractor(cfg config.DetectorConfig) *ContourExtractor {
	_ = cfg
	return &ContourExtractor{}
}

// Extract возвращает ошибку, если сборка без тега gocv.
func (e *ContourExtractor) Extract(mask port.Frame) (entity.ContourSet, error) {
	_ = mask
	return entity.ContourSet{}, entity.ErrGoCVDisabled
}

type ImageSource struct{}

// OpenImage возвращает ошибку, если сборка без тега gocv.
func OpenImage(path string, loop bool) (*ImageSource, error) {
	_, _ = path, loop
	return nil, entity.ErrGoCVDisabled
}

func (s *ImageSource) Next(ctx context.Context) (port.Frame, error) {
	_ = ctx
	return nil, entity.ErrGoCVDisabled
}

func (s *ImageSource) Close() error { return nil }

type CaptureSource struct{}

// OpenVideo возвращает ошибку, если сборка без тега gocv.
func OpenVideo(path string) (*CaptureSource, error) {
	_ = path
	return nil, entity.ErrGoCVDisabled
}

// OpenCamera возвращает ошибку, если сборка без тега gocv.
func OpenCamera(device int) (*CaptureSource, error) {
	_ = device
	return nil, entity.ErrGoCVDisabled
}

func (s *CaptureSource) Next(ctx context.Context) (port.Frame, error) {
	_ = ctx
	return nil, entity.ErrGoCVDisabled
}

func (s *CaptureSource) Close() error { return nil }

// DecodeFrame возвращает ошибку, если сборка без тега gocv.
func DecodeFrame(data []byte) (port.Frame, error) {
	_ = data
	return nil, entity.ErrGoCVDisabled
}
