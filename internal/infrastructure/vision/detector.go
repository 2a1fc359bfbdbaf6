//go:build gocv
// +build gocv

package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// MatFrame — кадр OpenCV; владеет матрицей до Close.
type MatFrame struct {
	Mat gocv.Mat
}

func (f *MatFrame) Width() int    { return f.Mat.Cols() }
func (f *MatFrame) Height() int   { return f.Mat.Rows() }
func (f *MatFrame) Channels() int { return f.Mat.Channels() }
func (f *MatFrame) Close() error  { return f.Mat.Close() }

// Preprocessor строит бинарную маску краёв: resize → blur → gray → Canny → dilate/erode.
type Preprocessor struct {
	cfg config.DetectorConfig
}

// NewPreprocessor создаёт препроцессор с параметрами детектора.
func NewPreprocessor(cfg config.DetectorConfig) *Preprocessor {
	return &Preprocessor{cfg: cfg}
}

// Mask возвращает новую маску; входной кадр не меняется.
func (p *Preprocessor) Mask(frame port.Frame) (port.Frame, error) {
	src, err := asMat(frame)
	if err != nil {
		return nil, err
	}
	if src.Empty() {
		return nil, errors.New("empty frame")
	}

	// Приводим кадр к стандартной ширине для стабильных порогов.
	resized := gocv.NewMat()
	defer resized.Close()
	if w := p.cfg.ResizeWidth; w > 0 && src.Cols() != w {
		h := src.Rows() * w / src.Cols()
		gocv.Resize(src, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	} else {
		src.CopyTo(&resized)
	}

	blur := gocv.NewMat()
	defer blur.Close()
	k := p.cfg.BlurKernel
	gocv.GaussianBlur(resized, &blur, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	gray := gocv.NewMat()
	defer gray.Close()
	if blur.Channels() > 1 {
		gocv.CvtColor(blur, &gray, gocv.ColorBGRToGray)
	} else {
		blur.CopyTo(&gray)
	}

	edges := gocv.NewMat()
	gocv.Canny(gray, &edges, p.cfg.CannyLow, p.cfg.CannyHigh)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	edges = morph(edges, kernel, p.cfg.Dilate, gocv.Dilate)
	edges = morph(edges, kernel, p.cfg.Erode, gocv.Erode)

	return &MatFrame{Mat: edges}, nil
}

// morph применяет операцию n раз, освобождая промежуточные матрицы.
func morph(src gocv.Mat, kernel gocv.Mat, n int, op func(gocv.Mat, *gocv.Mat, gocv.Mat)) gocv.Mat {
	for i := 0; i < n; i++ {
		dst := gocv.NewMat()
		op(src, &dst, kernel)
		src.Close()
		src = dst
	}
	return src
}

// ContourExtractor извлекает полную иерархию контуров (RETR_TREE) и меряет каждый контур.
type ContourExtractor struct {
	epsilon float64
}

// NewContourExtractor создаёт экстрактор; epsilon аппроксимации берётся как доля периметра.
func NewContourExtractor(cfg config.DetectorConfig) *ContourExtractor {
	return &ContourExtractor{epsilon: cfg.ApproxEpsilon}
}

// Extract переводит контуры и hierarchy OpenCV в плотный массив с индексными связями.
func (e *ContourExtractor) Extract(mask port.Frame) (entity.ContourSet, error) {
	m, err := asMat(mask)
	if err != nil {
		return entity.ContourSet{}, err
	}
	if m.Empty() {
		return entity.ContourSet{}, nil
	}

	hierarchy := gocv.NewMat()
	defer hierarchy.Close()
	contours := gocv.FindContoursWithParams(m, &hierarchy, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	n := contours.Size()
	if hierarchy.Cols() < n {
		return entity.ContourSet{}, fmt.Errorf("contour hierarchy has %d entries for %d contours", hierarchy.Cols(), n)
	}

	set := entity.ContourSet{Contours: make([]entity.Contour, n)}
	for i := 0; i < n; i++ {
		// [next, previous, first child, parent]
		h := hierarchy.GetVeciAt(0, i)
		c := e.measure(contours.At(i))
		c.Next, c.Prev, c.Child, c.Parent = int(h[0]), int(h[1]), int(h[2]), int(h[3])
		set.Contours[i] = c
	}
	return set, nil
}

// measure считает вершины аппроксимации, площадь и центр масс контура.
func (e *ContourExtractor) measure(pv gocv.PointVector) entity.Contour {
	peri := gocv.ArcLength(pv, true)
	approx := gocv.ApproxPolyDP(pv, e.epsilon*peri, true)
	defer approx.Close()

	c := entity.Contour{
		Vertices: approx.Size(),
		Area:     gocv.ContourArea(pv),
	}
	if c.Area <= 0 {
		return c
	}

	// Моменты залитого контура в его ограничивающем прямоугольнике.
	rect := gocv.BoundingRect(pv)
	shifted := pv.ToPoints()
	for i := range shifted {
		shifted[i] = shifted[i].Sub(rect.Min)
	}
	poly := gocv.NewPointsVectorFromPoints([][]image.Point{shifted})
	defer poly.Close()

	fill := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rect.Dy()+1, rect.Dx()+1, gocv.MatTypeCV8UC1)
	defer fill.Close()
	gocv.FillPoly(&fill, poly, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	mom := gocv.Moments(fill, true)
	if m00 := mom["m00"]; m00 != 0 {
		c.Centroid = entity.Point2{
			X: float64(rect.Min.X) + mom["m10"]/m00,
			Y: float64(rect.Min.Y) + mom["m01"]/m00,
		}
	}
	return c
}

func asMat(frame port.Frame) (gocv.Mat, error) {
	f, ok := frame.(*MatFrame)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("unsupported frame type %T", frame)
	}
	return f.Mat, nil
}

var (
	_ port.Preprocessor     = (*Preprocessor)(nil)
	_ port.ContourExtractor = (*ContourExtractor)(nil)
)
