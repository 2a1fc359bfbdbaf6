package app

import (
	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
)

// beaconVertices — маяк: треугольник внутри внешней фигуры.
const beaconVertices = 3

// BeaconMatcher ищет маяк в иерархии контуров по форме и отношению площадей.
type BeaconMatcher struct {
	low  float64
	high float64
}

// NewBeaconMatcher создаёт матчер с полосой отношений [low, high).
func NewBeaconMatcher(cfg config.DetectorConfig) *BeaconMatcher {
	return &BeaconMatcher{low: cfg.RatioLow, high: cfg.RatioHigh}
}

// Find возвращает первый в порядке обхода контур-лист с тремя вершинами,
// у которого есть предок с отношением площадей в полосе.
func (m *BeaconMatcher) Find(set entity.ContourSet) (entity.Beacon, bool) {
	for i, c := range set.Contours {
		if !c.HasParent() || c.HasChild() {
			continue
		}
		if c.Vertices != beaconVertices || c.Area <= 0 {
			continue
		}

		cand, ok := m.acceptAncestor(set, i, c.Area)
		if !ok {
			continue
		}
		// Центр маяка — центр масс внешнего контура.
		return entity.Beacon{BeaconCandidate: cand, Centroid: set.At(cand.Outer).Centroid}, true
	}
	return entity.Beacon{}, false
}

// acceptAncestor идёт по цепочке родителей и возвращает ближайшего,
// чьё отношение площадей попадает в полосу.
func (m *BeaconMatcher) acceptAncestor(set entity.ContourSet, inner int, innerArea float64) (entity.BeaconCandidate, bool) {
	for _, p := range set.Ancestors(inner) {
		outerArea := set.At(p).Area
		ratio := outerArea / innerArea
		if m.InBand(ratio) {
			return entity.BeaconCandidate{
				Inner:     inner,
				Outer:     p,
				Vertices:  beaconVertices,
				Ratio:     ratio,
				InnerArea: innerArea,
				OuterArea: outerArea,
			}, true
		}
	}
	return entity.BeaconCandidate{}, false
}

// InBand проверяет попадание в полуинтервал [low, high).
func (m *BeaconMatcher) InBand(ratio float64) bool {
	return ratio >= m.low && ratio < m.high
}
