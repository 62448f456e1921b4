package physics

import (
	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// VoxelField - доступ к полю блоков на чтение на время тика
type VoxelField interface {
	Grid() grid.Grid
	Table() *block.Table
	BlockAt(pos vec.Vec3) (block.Block, bool)
	ObjectAt(pos vec.Vec3) (block.Object, bool)
}

// cellShapes переводит локальные формы ячейки в мировые координаты
func cellShapes(g grid.Grid, pos vec.Vec3, shapes []vec.FloatBox) []vec.FloatBox {
	center := g.GridToWorld(pos)
	out := make([]vec.FloatBox, len(shapes))
	for i, s := range shapes {
		out[i] = s.Scale(g.CellSize()).Translate(center)
	}
	return out
}

// blocked проверяет, пересекает ли бокс твёрдую форму поля.
// Ячейки за пределами мира считаются пустыми.
func blocked(field VoxelField, box vec.FloatBox) bool {
	g := field.Grid()
	for _, pos := range g.CellsOverlapping(box) {
		if b, ok := field.BlockAt(pos); ok && b.Solid {
			if anyOverlaps(cellShapes(g, pos, b.Shapes), box) {
				return true
			}
		}
		if obj, ok := field.ObjectAt(pos); ok && obj.Blocking() {
			if anyOverlaps(cellShapes(g, pos, field.Table().ObjectShapes(obj)), box) {
				return true
			}
		}
	}
	return false
}

func anyOverlaps(shapes []vec.FloatBox, box vec.FloatBox) bool {
	for _, s := range shapes {
		if s.Overlaps(box) {
			return true
		}
	}
	return false
}
