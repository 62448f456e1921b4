package grid

import (
	"math"

	"github.com/annel0/voxel-engine/internal/vec"
)

// CellsOverlapping возвращает позиции всех ячеек мира, бокс которых строго
// пересекается с box. Касание гранью пересечением не считается.
// Ячейки за пределами мира пропускаются.
func (g Grid) CellsOverlapping(box vec.FloatBox) []vec.Vec3 {
	lo, hi, ok := g.cellRange(box)
	if !ok {
		return nil
	}

	out := make([]vec.Vec3, 0, (hi.X-lo.X+1)*(hi.Y-lo.Y+1)*(hi.Z-lo.Z+1))
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				pos := vec.Vec3{X: x, Y: y, Z: z}
				if g.CellBox(pos).Overlaps(box) {
					out = append(out, pos)
				}
			}
		}
	}
	return out
}

// cellRange возвращает диапазон кандидатов, обрезанный по границам мира.
// Диапазон берётся по ячейкам, содержащим углы бокса, и затем фильтруется
// строгой проверкой пересечения.
func (g Grid) cellRange(box vec.FloatBox) (lo, hi vec.Vec3, ok bool) {
	r := float64(g.worldRadiusInCell)
	var l, h [3]int
	for i := 0; i < 3; i++ {
		fl := math.Floor((box.Min[i] + g.CellRadius()) / g.cellSize)
		fh := math.Floor((box.Max[i] + g.CellRadius()) / g.cellSize)
		if math.IsNaN(fl) || math.IsNaN(fh) || fh < -r || fl > r {
			return vec.Vec3{}, vec.Vec3{}, false
		}
		l[i] = int(math.Max(fl, -r))
		h[i] = int(math.Min(fh, r))
	}
	return vec.Vec3{X: l[0], Y: l[1], Z: l[2]}, vec.Vec3{X: h[0], Y: h[1], Z: h[2]}, true
}
