package entity

import "time"

// Point2 — точка с вещественными координатами в пикселях кадра.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BeaconCandidate описывает пару «внутренний треугольник — принятый предок».
type BeaconCandidate struct {
	Inner     int     `json:"inner"`      // индекс внутреннего контура
	Outer     int     `json:"outer"`      // индекс принятого предка
	Vertices  int     `json:"vertices"`   // вершин после аппроксимации
	Ratio     float64 `json:"ratio"`      // площадь предка / площадь треугольника
	InnerArea float64 `json:"inner_area"` // площадь треугольника
	OuterArea float64 `json:"outer_area"` // площадь предка
}

// Beacon — найденный маркер с центром масс внешнего контура.
type Beacon struct {
	BeaconCandidate
	Centroid Point2 `json:"centroid"`
}

// DetectionResult хранит итог анализа одного кадра.
type DetectionResult struct {
	Seq         uint64    `json:"seq"`          // номер кадра
	Found       bool      `json:"found"`        // найден ли маяк
	Beacon      *Beacon   `json:"beacon"`       // nil, если маяк не найден
	Offset      Point2    `json:"offset"`       // смещение центра маяка от центра кадра
	FrameWidth  int       `json:"frame_width"`  // ширина маски
	FrameHeight int       `json:"frame_height"` // высота маски
	Contours    int       `json:"contours"`     // сколько контуров было в кадре
	Duration    float64   `json:"duration_ms"`  // время обработки кадра
	At          time.Time `json:"at"`
}

// Center возвращает центр кадра.
func (r DetectionResult) Center() Point2 {
	return Point2{X: float64(r.FrameWidth) / 2, Y: float64(r.FrameHeight) / 2}
}

// DetectionStats — накопленная статистика цикла детекции.
type DetectionStats struct {
	Frames int64 `json:"frames"`
	Misses int64 `json:"misses"`
}

// OKPercent возвращает долю кадров с найденным маяком в процентах.
func (s DetectionStats) OKPercent() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.Frames-s.Misses) / float64(s.Frames) * 100
}
