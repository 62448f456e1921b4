package mesh

import (
	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// SectorView - неизменяемый снимок твёрдых ячеек сектора, снятый в момент
// отправки задачи. Построитель меша читает только его и никогда не обращается к миру.
//
// Cells индексируются так же, как CellID: (x+r) + n*(y+r) + n*n*(z+r),
// где n = 2r+1. Значение block.Air означает, что ячейка не даёт граней.
//
// Borders[d] - плоскость ячеек соседнего сектора, прилегающая к грани d,
// индекс i + n*j по осям u=(axis+1)%3, v=(axis+2)%3. nil - соседа нет
// (край мира или сектор не загружен), такие ячейки считаются пустыми.
type SectorView struct {
	SectorID grid.SectorID
	Sector   vec.Vec3
	Version  uint64
	Radius   int
	Cells    []block.Kind
	Borders  [6][]block.Kind
}

// NewSectorView создаёт пустой снимок сектора радиуса radius
func NewSectorView(id grid.SectorID, sector vec.Vec3, radius int, version uint64) *SectorView {
	n := 2*radius + 1
	return &SectorView{
		SectorID: id,
		Sector:   sector,
		Version:  version,
		Radius:   radius,
		Cells:    make([]block.Kind, n*n*n),
	}
}

// Size возвращает длину ребра сектора в ячейках
func (v *SectorView) Size() int {
	return 2*v.Radius + 1
}

// Index возвращает индекс ячейки по индексам 0..n-1 вдоль осей
func (v *SectorView) Index(i, j, k int) int {
	n := v.Size()
	return i + n*(j+n*k)
}

// Set записывает тип ячейки по координате ячейки в [-r, r]
func (v *SectorView) Set(cell vec.Vec3, kind block.Kind) {
	r := v.Radius
	v.Cells[v.Index(cell.X+r, cell.Y+r, cell.Z+r)] = kind
}

// At возвращает тип ячейки по координате ячейки в [-r, r]
func (v *SectorView) At(cell vec.Vec3) block.Kind {
	r := v.Radius
	return v.kindAt([3]int{cell.X + r, cell.Y + r, cell.Z + r})
}

// SetBorder записывает ячейку плоскости соседа за гранью d
func (v *SectorView) SetBorder(d grid.Direction, i, j int, kind block.Kind) {
	n := v.Size()
	if v.Borders[d] == nil {
		v.Borders[d] = make([]block.Kind, n*n)
	}
	v.Borders[d][i+n*j] = kind
}

// Empty сообщает, что в секторе нет ни одной твёрдой ячейки
func (v *SectorView) Empty() bool {
	for _, k := range v.Cells {
		if k != block.Air {
			return false
		}
	}
	return true
}

// kindAt возвращает тип по индексам 0..n-1. Позиция, выходящая за сектор ровно
// по одной оси на одну ячейку, читается из плоскости соседа; всё остальное пусто.
func (v *SectorView) kindAt(p [3]int) block.Kind {
	n := v.Size()
	outside := -1
	for axis := 0; axis < 3; axis++ {
		if p[axis] >= 0 && p[axis] < n {
			continue
		}
		if outside >= 0 || (p[axis] != -1 && p[axis] != n) {
			return block.Air
		}
		outside = axis
	}
	if outside < 0 {
		return v.Cells[v.Index(p[0], p[1], p[2])]
	}

	sign := 1
	if p[outside] < 0 {
		sign = -1
	}
	plane := v.Borders[grid.FaceDirection(outside, sign)]
	if plane == nil {
		return block.Air
	}
	u, w := (outside+1)%3, (outside+2)%3
	return plane[p[u]+n*p[w]]
}
