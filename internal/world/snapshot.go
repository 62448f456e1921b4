package world

import (
	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// SnapshotSector копирует твёрдые ячейки сектора и прилегающие плоскости
// соседних секторов в неизменяемый снимок для фонового построения меша.
// Версия снимка равна текущей эпохе сектора.
func (f *Field) SnapshotSector(id grid.SectorID) (*mesh.SectorView, bool) {
	coord, ok := f.grid.SectorIDToCoordinate(id)
	if !ok {
		return nil, false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	r := f.grid.SectorRadius()
	n := f.grid.SectorSize()
	var epoch uint64
	s, exists := f.sectors[id]
	if exists {
		epoch = s.epoch
	}
	view := mesh.NewSectorView(id, coord, r, epoch)

	if exists && s.filled > 0 {
		for i, kind := range s.kinds {
			if f.table.IsSolid(kind) {
				view.Cells[i] = kind
			}
		}
	}

	center := f.grid.SectorCenter(coord)
	for _, d := range grid.Directions {
		// Крайняя ячейка сектора на радиусе мира: соседа нет
		if f.grid.OnWorldRadius(center.Add(d.Offset().Scale(r)), d) {
			continue
		}
		nid, _ := f.grid.SectorCoordinateToID(coord.Add(d.Offset()))
		ns, exists := f.sectors[nid]
		if !exists || ns.filled == 0 {
			continue
		}

		axis := d.Axis()
		u, v := (axis+1)%3, (axis+2)%3
		var cell [3]int
		// Ближний к нам слой соседа лежит на противоположной его стороне
		cell[axis] = -d.Sign() * r
		plane := make([]block.Kind, n*n)
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				cell[u], cell[v] = i-r, j-r
				cid, _ := f.grid.CellCoordinateToID(vecOf(cell))
				if kind := ns.kind(cid); f.table.IsSolid(kind) {
					plane[i+n*j] = kind
				}
			}
		}
		view.Borders[d] = plane
	}

	return view, true
}

func vecOf(c [3]int) vec.Vec3 {
	return vec.Vec3{X: c[0], Y: c[1], Z: c[2]}
}
