package pdf

import (
	"errors"
	"math"
)

// Rect 矩形，PDF 默认用户空间坐标（y 轴向上）
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Normalize 保证 X0<=X1 且 Y0<=Y1
func (r Rect) Normalize() Rect {
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area 面积，退化矩形为 0
func (r Rect) Area() float64 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IsEmpty reports a rectangle without area
func (r Rect) IsEmpty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// Union 外接矩形；空矩形不参与
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	if o == (Rect{}) {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// Intersect 交集，无交集时返回零值
func (r Rect) Intersect(o Rect) Rect {
	x := Rect{
		X0: math.Max(r.X0, o.X0),
		Y0: math.Max(r.Y0, o.Y0),
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
	}
	if x.IsEmpty() {
		return Rect{}
	}
	return x
}

// Expand 向四周扩展 d
func (r Rect) Expand(d float64) Rect {
	return Rect{X0: r.X0 - d, Y0: r.Y0 - d, X1: r.X1 + d, Y1: r.Y1 + d}
}

// Contains reports whether o lies inside r enlarged by tol
func (r Rect) Contains(o Rect, tol float64) bool {
	return o.X0 >= r.X0-tol && o.Y0 >= r.Y0-tol && o.X1 <= r.X1+tol && o.Y1 <= r.Y1+tol
}

// Overlaps 是否有正面积交集
func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).IsEmpty()
}

// OverlapRatio returns the share of a's area that lies inside b
func OverlapRatio(a, b Rect) float64 {
	area := a.Area()
	if area == 0 {
		return 0
	}
	return a.Intersect(b).Area() / area
}

// IoU 交并比
func IoU(a, b Rect) float64 {
	inter := a.Intersect(b).Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ErrInvalidPageGeometry is returned for non-positive page heights or scales
var ErrInvalidPageGeometry = errors.New("page height and scale must be positive")

// ImageToPdfRect converts a box in image pixels (origin top-left, y down,
// scale pixels per point) into PDF user space.
func ImageToPdfRect(r Rect, pageHeight, scale float64) (Rect, error) {
	if pageHeight <= 0 || scale <= 0 {
		return Rect{}, ErrInvalidPageGeometry
	}
	r = r.Normalize()
	return Rect{
		X0: r.X0 / scale,
		Y0: pageHeight - r.Y1/scale,
		X1: r.X1 / scale,
		Y1: pageHeight - r.Y0/scale,
	}, nil
}

// PdfToImageRect is the inverse of ImageToPdfRect
func PdfToImageRect(r Rect, pageHeight, scale float64) (Rect, error) {
	if pageHeight <= 0 || scale <= 0 {
		return Rect{}, ErrInvalidPageGeometry
	}
	r = r.Normalize()
	return Rect{
		X0: r.X0 * scale,
		Y0: (pageHeight - r.Y1) * scale,
		X1: r.X1 * scale,
		Y1: (pageHeight - r.Y0) * scale,
	}, nil
}

// Matrix PDF 变换矩阵 [a b c d e f]，行向量约定：[x y 1] × M
type Matrix [6]float64

// Identity 单位矩阵
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// TranslateMatrix returns the matrix for a pure translation
func TranslateMatrix(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// Multiply returns m × n (m applied first)
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Transform 变换一个点
func (m Matrix) Transform(x, y float64) (float64, float64) {
	return x*m[0] + y*m[2] + m[4], x*m[1] + y*m[3] + m[5]
}

// TransformRect returns the bounding box of the transformed corners
func (m Matrix) TransformRect(r Rect) Rect {
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.Transform(r.X0, r.Y0)
	xs[1], ys[1] = m.Transform(r.X1, r.Y0)
	xs[2], ys[2] = m.Transform(r.X0, r.Y1)
	xs[3], ys[3] = m.Transform(r.X1, r.Y1)
	out := Rect{X0: xs[0], Y0: ys[0], X1: xs[0], Y1: ys[0]}
	for i := 1; i < 4; i++ {
		out.X0 = math.Min(out.X0, xs[i])
		out.X1 = math.Max(out.X1, xs[i])
		out.Y0 = math.Min(out.Y0, ys[i])
		out.Y1 = math.Max(out.Y1, ys[i])
	}
	return out
}

// Determinant 行列式
func (m Matrix) Determinant() float64 {
	return m[0]*m[3] - m[1]*m[2]
}

// ErrSingularMatrix 矩阵不可逆
var ErrSingularMatrix = errors.New("matrix is not invertible")

// Invert returns the inverse matrix
func (m Matrix) Invert() (Matrix, error) {
	det := m.Determinant()
	if math.Abs(det) < 1e-9 {
		return Matrix{}, ErrSingularMatrix
	}
	a := m[3] / det
	b := -m[1] / det
	c := -m[2] / det
	d := m[0] / det
	return Matrix{a, b, c, d, -(m[4]*a + m[5]*c), -(m[4]*b + m[5]*d)}, nil
}

// ScaleY 纵向缩放因子（用于计算有效字号）
func (m Matrix) ScaleY() float64 {
	return math.Hypot(m[2], m[3])
}

// ScaleX 横向缩放因子
func (m Matrix) ScaleX() float64 {
	return math.Hypot(m[0], m[1])
}

// ApproxEqual 逐项比较
func (m Matrix) ApproxEqual(n Matrix, eps float64) bool {
	for i := range m {
		if math.Abs(m[i]-n[i]) > eps {
			return false
		}
	}
	return true
}

// IsAxisAligned reports matrices without rotation or skew
func (m Matrix) IsAxisAligned() bool {
	return math.Abs(m[1]) < 1e-6 && math.Abs(m[2]) < 1e-6
}
