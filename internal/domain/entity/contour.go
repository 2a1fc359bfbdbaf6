package entity

// NoLink отмечает отсутствие родителя, ребёнка или соседа в иерархии.
const NoLink = -1

// Contour представляет замкнутый контур, его меры и связи в иерархии
type Contour struct {
	Vertices int     // число вершин после аппроксимации ломаной
	Area     float64 // площадь внутри контура
	Centroid Point2  // центр масс, нулевой при Area == 0
	Next     int     // следующий контур на том же уровне
	Prev     int     // предыдущий контур на том же уровне
	Child    int     // первый вложенный контур
	Parent   int     // объемлющий контур
}

// HasParent сообщает, вложен ли контур в другой.
func (c Contour) HasParent() bool {
	return c.Parent != NoLink
}

// HasChild сообщает, есть ли внутри контура другие контуры.
func (c Contour) HasChild() bool {
	return c.Child != NoLink
}

// ContourSet — плотный массив контуров кадра; связи хранятся индексами в этом же массиве.
type ContourSet struct {
	Contours []Contour
}

// Len возвращает количество контуров.
func (s ContourSet) Len() int {
	return len(s.Contours)
}

// At возвращает контур по индексу.
func (s ContourSet) At(i int) Contour {
	return s.Contours[i]
}

// Valid проверяет, что индекс указывает на существующий контур.
func (s ContourSet) Valid(i int) bool {
	return i >= 0 && i < len(s.Contours)
}

// Ancestors возвращает индексы предков контура от ближайшего к корню.
// Цепочка обрывается на некорректной ссылке или цикле.
func (s ContourSet) Ancestors(i int) []int {
	if !s.Valid(i) {
		return nil
	}
	var chain []int
	for p := s.Contours[i].Parent; s.Valid(p); p = s.Contours[p].Parent {
		if len(chain) >= len(s.Contours) {
			break
		}
		chain = append(chain, p)
	}
	return chain
}
