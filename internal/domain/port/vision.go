package port

import (
	"context"

	"beacon-pilot/internal/domain/entity"
)

// Frame кадр с известными размерами; реализация владеет нативной памятью
type Frame interface {
	Width() int
	Height() int
	Channels() int
	Close() error
}

// FrameSource источник кадров: изображение, видеофайл или камера
type FrameSource interface {
	// Next возвращает следующий кадр или entity.ErrSourceExhausted в конце потока
	Next(ctx context.Context) (Frame, error)

	// Close освобождает камеру или файл
	Close() error
}

// Preprocessor превращает кадр в бинарную маску краёв
type Preprocessor interface {
	// Mask возвращает новую маску; кадр остаётся за вызывающим
	Mask(frame Frame) (Frame, error)
}

// ContourExtractor извлекает иерархию контуров из бинарной маски
type ContourExtractor interface {
	// Extract возвращает все контуры со связями; пустая маска даёт пустой набор
	Extract(mask Frame) (entity.ContourSet, error)
}
