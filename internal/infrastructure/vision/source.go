package vision

import (
	"fmt"

	"beacon-pilot/internal/domain/port"
)

// SourceOptions описывает, откуда брать кадры. Заполняется ровно одно поле.
type SourceOptions struct {
	Image  string // путь к изображению
	Video  string // путь к видеофайлу
	Camera int    // индекс камеры, если Image и Video пусты
	Loop   bool   // повторять изображение бесконечно
}

// Name возвращает человекочитаемое описание источника для логов и журнала.
func (o SourceOptions) Name() string {
	switch {
	case o.Image != "":
		return "image:" + o.Image
	case o.Video != "":
		return "video:" + o.Video
	default:
		return fmt.Sprintf("camera:%d", o.Camera)
	}
}

// Open открывает источник по опциям.
func Open(opts SourceOptions) (port.FrameSource, error) {
	switch {
	case opts.Image != "":
		src, err := OpenImage(opts.Image, opts.Loop)
		if err != nil {
			return nil, err
		}
		return src, nil
	case opts.Video != "":
		src, err := OpenVideo(opts.Video)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		src, err := OpenCamera(opts.Camera)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
