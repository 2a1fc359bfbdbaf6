package entity

import "time"

// TrackedPosition — неизменяемый снимок последнего известного положения маяка.
// После публикации значение не меняется; новое состояние публикуется новым снимком.
type TrackedPosition struct {
	DX          float64   `json:"dx"`           // смещение по X от центра кадра, px
	DY          float64   `json:"dy"`           // смещение по Y от центра кадра, px
	Centroid    Point2    `json:"centroid"`     // центр маяка в кадре
	FrameWidth  int       `json:"frame_width"`  // ширина кадра, к которому относится смещение
	FrameHeight int       `json:"frame_height"` // высота кадра
	Seq         uint64    `json:"seq"`          // номер публикации
	Valid       bool      `json:"valid"`        // была ли хоть одна успешная детекция
	Stale       bool      `json:"stale"`        // смещение устарело после серии промахов
	Misses      int       `json:"misses"`       // промахов подряд
	DetectedAt  time.Time `json:"detected_at"`  // время последней успешной детекции
	UpdatedAt   time.Time `json:"updated_at"`   // время публикации
}

// Usable сообщает, можно ли вести маяк по этому снимку.
func (p TrackedPosition) Usable() bool {
	return p.Valid && !p.Stale && p.FrameWidth > 0 && p.FrameHeight > 0
}

// Normalized возвращает смещение, нормированное на половину размеров кадра.
func (p TrackedPosition) Normalized() (nx, ny float64) {
	if p.FrameWidth <= 0 || p.FrameHeight <= 0 {
		return 0, 0
	}
	return p.DX / (float64(p.FrameWidth) / 2), p.DY / (float64(p.FrameHeight) / 2)
}
