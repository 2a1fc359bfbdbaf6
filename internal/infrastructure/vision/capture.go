//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// ImageSource отдаёт одно изображение один раз или по кругу.
type ImageSource struct {
	mat    gocv.Mat
	loop   bool
	served bool
}

// OpenImage загружает изображение с диска.
func OpenImage(path string, loop bool) (*ImageSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mat, err := decodeToMat(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &ImageSource{mat: mat, loop: loop}, nil
}

func (s *ImageSource) Next(ctx context.Context) (port.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.served && !s.loop {
		return nil, entity.ErrSourceExhausted
	}
	s.served = true
	return &MatFrame{Mat: s.mat.Clone()}, nil
}

func (s *ImageSource) Close() error {
	return s.mat.Close()
}

// CaptureSource читает кадры из видеофайла или с камеры.
type CaptureSource struct {
	capture *gocv.VideoCapture
}

// OpenVideo открывает видеофайл.
func OpenVideo(path string) (*CaptureSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return &CaptureSource{capture: vc}, nil
}

// OpenCamera открывает камеру по индексу.
func OpenCamera(device int) (*CaptureSource, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	return &CaptureSource{capture: vc}, nil
}

func (s *CaptureSource) Next(ctx context.Context) (port.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, entity.ErrSourceExhausted
	}
	return &MatFrame{Mat: mat}, nil
}

func (s *CaptureSource) Close() error {
	return s.capture.Close()
}

// DecodeFrame декодирует изображение (JPEG, PNG) в кадр.
func DecodeFrame(data []byte) (port.Frame, error) {
	mat, err := decodeToMat(data)
	if err != nil {
		return nil, err
	}
	return &MatFrame{Mat: mat}, nil
}

// decodeToMat превращает байты изображения в gocv.Mat.
func decodeToMat(imageData []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	if !mat.Empty() {
		mat.Close()
	}
	return gocv.NewMat(), errors.New("failed to decode image")
}

var (
	_ port.FrameSource = (*ImageSource)(nil)
	_ port.FrameSource = (*CaptureSource)(nil)
)
