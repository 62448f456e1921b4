// Package grid реализует адресацию двухуровневой воксельной сетки:
// мировые координаты ↔ позиция в сетке ↔ (координата сектора, координата ячейки) ↔ (SectorID, CellID).
//
// Все функции чистые и не имеют побочных эффектов, поэтому Grid можно
// безопасно использовать из любых горутин без синхронизации.
// Координаты за пределами мира возвращаются как (значение, false), без паники.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/vec"
)

// SectorID - линейный индекс сектора в мире
type SectorID uint32

// CellID - линейный индекс ячейки внутри сектора
type CellID uint32

// PositionID - линейный индекс ячейки во всём мире
type PositionID uint64

// ErrInvalidDimensions возвращается при недопустимых размерах сетки
var ErrInvalidDimensions = errors.New("grid: invalid dimensions")

// Grid описывает размеры мира. Значение неизменяемо после создания.
type Grid struct {
	cellSize             float64
	sectorRadiusInCells  int
	worldRadiusInSectors int

	sectorSize        int // 2*sectorRadiusInCells+1
	worldRadiusInCell int // worldRadiusInSectors*sectorSize + sectorRadiusInCells
}

// New создаёт сетку с ячейками размера cellSize (в мировых единицах),
// секторами радиуса sectorRadiusInCells и миром радиуса worldRadiusInSectors.
func New(cellSize float64, sectorRadiusInCells, worldRadiusInSectors int) (Grid, error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return Grid{}, fmt.Errorf("%w: cell size %v", ErrInvalidDimensions, cellSize)
	}
	if sectorRadiusInCells < 0 || worldRadiusInSectors < 0 {
		return Grid{}, fmt.Errorf("%w: negative radius (sector=%d, world=%d)",
			ErrInvalidDimensions, sectorRadiusInCells, worldRadiusInSectors)
	}

	sectorSize := 2*sectorRadiusInCells + 1
	worldSectors := uint64(2*worldRadiusInSectors + 1)
	if worldSectors*worldSectors*worldSectors > math.MaxUint32 {
		return Grid{}, fmt.Errorf("%w: too many sectors (%d per axis)", ErrInvalidDimensions, worldSectors)
	}
	cells := uint64(sectorSize)
	if cells*cells*cells > math.MaxUint32 {
		return Grid{}, fmt.Errorf("%w: too many cells per sector (%d per axis)", ErrInvalidDimensions, sectorSize)
	}

	return Grid{
		cellSize:             cellSize,
		sectorRadiusInCells:  sectorRadiusInCells,
		worldRadiusInSectors: worldRadiusInSectors,
		sectorSize:           sectorSize,
		worldRadiusInCell:    worldRadiusInSectors*sectorSize + sectorRadiusInCells,
	}, nil
}

// MustNew создаёт сетку или паникует. Предназначен для статических размеров.
func MustNew(cellSize float64, sectorRadiusInCells, worldRadiusInSectors int) Grid {
	g, err := New(cellSize, sectorRadiusInCells, worldRadiusInSectors)
	if err != nil {
		panic(err)
	}
	return g
}

// CellSize возвращает размер ячейки в мировых единицах
func (g Grid) CellSize() float64 { return g.cellSize }

// CellRadius возвращает половину размера ячейки
func (g Grid) CellRadius() float64 { return g.cellSize / 2 }

// SectorSize возвращает длину ребра сектора в ячейках
func (g Grid) SectorSize() int { return g.sectorSize }

// SectorRadius возвращает радиус сектора в ячейках
func (g Grid) SectorRadius() int { return g.sectorRadiusInCells }

// WorldRadius возвращает радиус мира в ячейках
func (g Grid) WorldRadius() int { return g.worldRadiusInCell }

// WorldRadiusInSectors возвращает радиус мира в секторах
func (g Grid) WorldRadiusInSectors() int { return g.worldRadiusInSectors }

// CellsPerSector возвращает количество ячеек в секторе
func (g Grid) CellsPerSector() int { return g.sectorSize * g.sectorSize * g.sectorSize }

// SectorCount возвращает количество секторов в мире
func (g Grid) SectorCount() int {
	n := 2*g.worldRadiusInSectors + 1
	return n * n * n
}

// IsValid сообщает, лежит ли позиция внутри мира
func (g Grid) IsValid(pos vec.Vec3) bool {
	return pos.MaxAbs() <= g.worldRadiusInCell
}

// WorldToGrid переводит мировую позицию в позицию сетки: floor((pos + cellRadius) / cellSize).
func (g Grid) WorldToGrid(pos mgl64.Vec3) (vec.Vec3, bool) {
	var out [3]int
	limit := float64(g.worldRadiusInCell)
	for i := 0; i < 3; i++ {
		f := math.Floor((pos[i] + g.CellRadius()) / g.cellSize)
		// Сравнение до приведения к int защищает от NaN и переполнения
		if !(f >= -limit && f <= limit) {
			return vec.Vec3{}, false
		}
		out[i] = int(f)
	}
	return vec.Vec3{X: out[0], Y: out[1], Z: out[2]}, true
}

// GridToWorld возвращает мировую позицию центра ячейки
func (g Grid) GridToWorld(pos vec.Vec3) mgl64.Vec3 {
	return pos.Float().Mul(g.cellSize)
}

// CellBox возвращает бокс ячейки в мировых единицах
func (g Grid) CellBox(pos vec.Vec3) vec.FloatBox {
	r := g.CellRadius()
	return vec.BoxFromCenter(g.GridToWorld(pos), mgl64.Vec3{r, r, r})
}

// GridToSectorCoordinate возвращает координату сектора, содержащего позицию
func (g Grid) GridToSectorCoordinate(pos vec.Vec3) (vec.Vec3, bool) {
	sector, _, ok := g.Decompose(pos)
	return sector, ok
}

// GridToCellCoordinate возвращает координату ячейки внутри её сектора
func (g Grid) GridToCellCoordinate(pos vec.Vec3) (vec.Vec3, bool) {
	_, cell, ok := g.Decompose(pos)
	return cell, ok
}

// Decompose раскладывает позицию на (сектор, ячейку) так, что
// pos = sector*SectorSize + cell, а компоненты cell лежат в [-SectorRadius, SectorRadius].
//
// Позиция сначала сдвигается на радиус мира, чтобы деление и остаток
// работали с неотрицательными числами, затем сдвиг вычитается обратно.
func (g Grid) Decompose(pos vec.Vec3) (sector, cell vec.Vec3, ok bool) {
	if !g.IsValid(pos) {
		return vec.Vec3{}, vec.Vec3{}, false
	}
	var s, c [3]int
	for i := 0; i < 3; i++ {
		shifted := pos.Axis(i) + g.worldRadiusInCell
		s[i] = shifted/g.sectorSize - g.worldRadiusInSectors
		c[i] = shifted%g.sectorSize - g.sectorRadiusInCells
	}
	return vec.Vec3{X: s[0], Y: s[1], Z: s[2]}, vec.Vec3{X: c[0], Y: c[1], Z: c[2]}, true
}

// Compose собирает позицию сетки из координат сектора и ячейки
func (g Grid) Compose(sector, cell vec.Vec3) (vec.Vec3, bool) {
	if sector.MaxAbs() > g.worldRadiusInSectors || cell.MaxAbs() > g.sectorRadiusInCells {
		return vec.Vec3{}, false
	}
	return sector.Scale(g.sectorSize).Add(cell), true
}

// SectorCoordinateToID линеаризует координату сектора
func (g Grid) SectorCoordinateToID(sector vec.Vec3) (SectorID, bool) {
	id, ok := encode(sector, g.worldRadiusInSectors)
	return SectorID(id), ok
}

// SectorIDToCoordinate восстанавливает координату сектора по индексу
func (g Grid) SectorIDToCoordinate(id SectorID) (vec.Vec3, bool) {
	return decode(uint64(id), g.worldRadiusInSectors)
}

// CellCoordinateToID линеаризует координату ячейки внутри сектора
func (g Grid) CellCoordinateToID(cell vec.Vec3) (CellID, bool) {
	id, ok := encode(cell, g.sectorRadiusInCells)
	return CellID(id), ok
}

// CellIDToCoordinate восстанавливает координату ячейки по индексу
func (g Grid) CellIDToCoordinate(id CellID) (vec.Vec3, bool) {
	return decode(uint64(id), g.sectorRadiusInCells)
}

// GridToID линеаризует позицию во всём мире
func (g Grid) GridToID(pos vec.Vec3) (PositionID, bool) {
	id, ok := encode(pos, g.worldRadiusInCell)
	return PositionID(id), ok
}

// IDToGrid восстанавливает позицию по мировому индексу
func (g Grid) IDToGrid(id PositionID) (vec.Vec3, bool) {
	return decode(uint64(id), g.worldRadiusInCell)
}

// Locate возвращает идентификаторы сектора и ячейки для позиции
func (g Grid) Locate(pos vec.Vec3) (SectorID, CellID, bool) {
	sector, cell, ok := g.Decompose(pos)
	if !ok {
		return 0, 0, false
	}
	sid, _ := g.SectorCoordinateToID(sector)
	cid, _ := g.CellCoordinateToID(cell)
	return sid, cid, true
}

// Position - обратная операция к Locate
func (g Grid) Position(sector SectorID, cell CellID) (vec.Vec3, bool) {
	s, ok := g.SectorIDToCoordinate(sector)
	if !ok {
		return vec.Vec3{}, false
	}
	c, ok := g.CellIDToCoordinate(cell)
	if !ok {
		return vec.Vec3{}, false
	}
	return g.Compose(s, c)
}

// SectorCenter возвращает позицию сетки центральной ячейки сектора
func (g Grid) SectorCenter(sector vec.Vec3) vec.Vec3 {
	return sector.Scale(g.sectorSize)
}

// SectorOrigin возвращает мировую позицию центра сектора
func (g Grid) SectorOrigin(sector vec.Vec3) mgl64.Vec3 {
	return g.GridToWorld(g.SectorCenter(sector))
}

// OnSectorBoundary сообщает, что сосед ячейки в направлении d лежит в другом секторе
func (g Grid) OnSectorBoundary(cell vec.Vec3, d Direction) bool {
	return cell.Axis(d.Axis())*d.Sign() >= g.sectorRadiusInCells
}

// OnSectorEdge сообщает, что ячейка касается границы сектора хотя бы по одной оси
func (g Grid) OnSectorEdge(cell vec.Vec3) bool {
	return cell.MaxAbs() >= g.sectorRadiusInCells
}

// OnWorldRadius сообщает, что сосед позиции в направлении d лежит за пределами мира
func (g Grid) OnWorldRadius(pos vec.Vec3, d Direction) bool {
	return pos.Axis(d.Axis())*d.Sign() >= g.worldRadiusInCell
}

// encode линеаризует вектор с компонентами в [-r, r]: (x+r) + n*(y+r) + n*n*(z+r)
func encode(v vec.Vec3, r int) (uint64, bool) {
	if v.MaxAbs() > r {
		return 0, false
	}
	n := uint64(2*r + 1)
	return uint64(v.X+r) + n*uint64(v.Y+r) + n*n*uint64(v.Z+r), true
}

func decode(id uint64, r int) (vec.Vec3, bool) {
	n := uint64(2*r + 1)
	if id >= n*n*n {
		return vec.Vec3{}, false
	}
	x := id % n
	id /= n
	y := id % n
	z := id / n
	return vec.Vec3{X: int(x) - r, Y: int(y) - r, Z: int(z) - r}, true
}
