package vec

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// FloatBox представляет выровненный по осям параллелепипед в мировых единицах.
// Инвариант: Min <= Max покомпонентно.
type FloatBox struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// NewFloatBox создаёт бокс из двух углов, упорядочивая компоненты
func NewFloatBox(a, b mgl64.Vec3) FloatBox {
	return FloatBox{
		Min: mgl64.Vec3{math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])},
		Max: mgl64.Vec3{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])},
	}
}

// BoxFromCenter создаёт бокс по центру и полуразмерам
func BoxFromCenter(center, radius mgl64.Vec3) FloatBox {
	return NewFloatBox(center.Sub(radius), center.Add(radius))
}

// Center возвращает центр бокса
func (b FloatBox) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Radius возвращает полуразмеры бокса
func (b FloatBox) Radius() mgl64.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Size возвращает размеры бокса
func (b FloatBox) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

// Translate сдвигает бокс на вектор
func (b FloatBox) Translate(d mgl64.Vec3) FloatBox {
	return FloatBox{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

// TranslateAxis сдвигает бокс вдоль одной оси
func (b FloatBox) TranslateAxis(axis int, d float64) FloatBox {
	b.Min[axis] += d
	b.Max[axis] += d
	return b
}

// Scale масштабирует бокс относительно начала координат
func (b FloatBox) Scale(k float64) FloatBox {
	return NewFloatBox(b.Min.Mul(k), b.Max.Mul(k))
}

// Overlaps проверяет строгое пересечение (касание гранями пересечением не считается)
func (b FloatBox) Overlaps(other FloatBox) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] <= other.Min[i] || other.Max[i] <= b.Min[i] {
			return false
		}
	}
	return true
}

// Contains проверяет, что other целиком лежит внутри бокса
func (b FloatBox) Contains(other FloatBox) bool {
	for i := 0; i < 3; i++ {
		if other.Min[i] < b.Min[i] || other.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Sweep возвращает наименьший бокс, содержащий оба бокса
func Sweep(a, b FloatBox) FloatBox {
	return FloatBox{
		Min: mgl64.Vec3{math.Min(a.Min[0], b.Min[0]), math.Min(a.Min[1], b.Min[1]), math.Min(a.Min[2], b.Min[2])},
		Max: mgl64.Vec3{math.Max(a.Max[0], b.Max[0]), math.Max(a.Max[1], b.Max[1]), math.Max(a.Max[2], b.Max[2])},
	}
}

// ApproxEq сравнивает боксы с допуском epsilon на каждую координату
func (b FloatBox) ApproxEq(other FloatBox, epsilon float64) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(b.Min[i]-other.Min[i]) > epsilon || math.Abs(b.Max[i]-other.Max[i]) > epsilon {
			return false
		}
	}
	return true
}
