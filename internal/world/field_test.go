package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

func newTestField(t *testing.T) *Field {
	t.Helper()
	g, err := grid.New(1, 2, 2)
	require.NoError(t, err)
	return NewField(g, block.DefaultTable())
}

func sectorOf(t *testing.T, f *Field, pos vec.Vec3) grid.SectorID {
	t.Helper()
	sid, _, ok := f.Grid().Locate(pos)
	require.True(t, ok)
	return sid
}

func TestField_SetAndGetBlock(t *testing.T) {
	f := newTestField(t)
	pos := vec.Vec3{X: 1, Y: -3, Z: 4}

	b, ok := f.BlockAt(pos)
	require.True(t, ok)
	assert.True(t, b.IsAir(), "незагруженный сектор - воздух")

	require.NoError(t, f.SetBlock(pos, block.Stone))
	b, ok = f.BlockAt(pos)
	require.True(t, ok)
	assert.Equal(t, block.Stone, b.Kind)
	assert.True(t, b.Solid)
	assert.Len(t, b.Shapes, 1)

	require.NoError(t, f.RemoveBlock(pos))
	b, _ = f.BlockAt(pos)
	assert.True(t, b.IsAir(), "удалённый блок заменяется воздухом")

	_, ok = f.BlockAt(vec.Vec3{X: 100})
	assert.False(t, ok)
}

func TestField_Errors(t *testing.T) {
	f := newTestField(t)

	assert.ErrorIs(t, f.SetBlock(vec.Vec3{Z: 13}, block.Stone), ErrOutOfBounds)
	assert.ErrorIs(t, f.SetBlock(vec.Vec3{}, block.Kind(500)), ErrUnknownKind)
	assert.ErrorIs(t, f.SetObject(vec.Vec3{}, block.Object{Kind: block.ObjectStairs, Facing: grid.Up}), block.ErrInvalidFacing)
}

func TestField_Objects(t *testing.T) {
	f := newTestField(t)
	pos := vec.Vec3{X: 2}
	ladder := block.Object{Kind: block.ObjectLadder, Facing: grid.North}

	_, ok := f.ObjectAt(pos)
	assert.False(t, ok)

	require.NoError(t, f.SetObject(pos, ladder))
	obj, ok := f.ObjectAt(pos)
	require.True(t, ok)
	assert.Equal(t, ladder, obj)

	require.NoError(t, f.SetObject(pos, block.Object{}))
	_, ok = f.ObjectAt(pos)
	assert.False(t, ok, "пустой объект удаляет текущий")
}

func TestField_EpochsAndDirty(t *testing.T) {
	f := newTestField(t)
	pos := vec.Vec3{}
	sid := sectorOf(t, f, pos)

	assert.Zero(t, f.Epoch(sid))
	require.NoError(t, f.SetBlock(pos, block.Stone))
	assert.Equal(t, uint64(1), f.Epoch(sid))

	// Повторная запись того же значения ничего не меняет
	require.NoError(t, f.SetBlock(pos, block.Stone))
	assert.Equal(t, uint64(1), f.Epoch(sid))

	require.NoError(t, f.SetBlock(pos, block.Dirt))
	assert.Equal(t, uint64(2), f.Epoch(sid))

	assert.Equal(t, 1, f.DirtyCount())
	assert.Equal(t, []grid.SectorID{sid}, f.DirtySectors())
	assert.Zero(t, f.DirtyCount())
	assert.Empty(t, f.DirtySectors(), "множество грязных секторов сбрасывается")

	f.MarkDirty(sid, sid)
	assert.Equal(t, []grid.SectorID{sid}, f.DirtySectors())
	assert.Equal(t, uint64(2), f.Epoch(sid), "повторная пометка не меняет эпоху")
}

func TestField_BoundaryEditTouchesNeighbour(t *testing.T) {
	f := newTestField(t)
	// Ячейка (2,0,0) лежит на восточной границе центрального сектора
	east := vec.Vec3{X: 3}
	require.NoError(t, f.SetBlock(east, block.Stone))
	eastID := sectorOf(t, f, east)
	f.DirtySectors()

	edge := vec.Vec3{X: 2}
	require.NoError(t, f.SetBlock(edge, block.Stone))
	centerID := sectorOf(t, f, edge)

	assert.Equal(t, uint64(2), f.Epoch(eastID), "сосед получает новую эпоху")
	assert.ElementsMatch(t, []grid.SectorID{centerID, eastID}, f.DirtySectors())
}

func TestField_SnapshotSector(t *testing.T) {
	f := newTestField(t)
	require.NoError(t, f.SetBlock(vec.Vec3{X: 1, Y: 1, Z: 1}, block.Grass))
	require.NoError(t, f.SetBlock(vec.Vec3{X: 3}, block.Stone)) // восточный сосед, ячейка (-2,0,0)
	require.NoError(t, f.SetObject(vec.Vec3{Y: 1}, block.Object{Kind: block.ObjectLadder, Facing: grid.South}))

	sid := sectorOf(t, f, vec.Vec3{})
	view, ok := f.SnapshotSector(sid)
	require.True(t, ok)

	assert.Equal(t, f.Epoch(sid), view.Version)
	assert.Equal(t, block.Grass, view.At(vec.Vec3{X: 1, Y: 1, Z: 1}))
	assert.Equal(t, block.Air, view.At(vec.Vec3{Y: 1}), "объекты в снимок не попадают")

	require.NotNil(t, view.Borders[grid.East])
	// Плоскость East: u = Y, v = Z, индексы сдвинуты на радиус
	assert.Equal(t, block.Stone, view.Borders[grid.East][2+5*2])
	assert.Nil(t, view.Borders[grid.West])

	// Снимок не меняется при последующих правках
	require.NoError(t, f.RemoveBlock(vec.Vec3{X: 1, Y: 1, Z: 1}))
	assert.Equal(t, block.Grass, view.At(vec.Vec3{X: 1, Y: 1, Z: 1}))

	_, ok = f.SnapshotSector(grid.SectorID(1 << 20))
	assert.False(t, ok)
}

func TestField_InteriorEditKeepsNeighbours(t *testing.T) {
	f := newTestField(t)
	east := vec.Vec3{X: 3}
	require.NoError(t, f.SetBlock(east, block.Stone))
	eastID := sectorOf(t, f, east)
	f.DirtySectors()

	require.NoError(t, f.SetBlock(vec.Vec3{X: 1, Y: -1}, block.Stone))
	assert.Equal(t, uint64(1), f.Epoch(eastID))
	assert.Equal(t, []grid.SectorID{sectorOf(t, f, vec.Vec3{})}, f.DirtySectors())
}

func TestField_SnapshotAtWorldRadius(t *testing.T) {
	f := newTestField(t)
	// Восточный крайний сектор мира занимает x от 8 до 12
	require.NoError(t, f.SetBlock(vec.Vec3{X: 12}, block.Stone))
	require.NoError(t, f.SetBlock(vec.Vec3{X: 7}, block.Dirt))

	view, ok := f.SnapshotSector(sectorOf(t, f, vec.Vec3{X: 12}))
	require.True(t, ok)

	assert.Equal(t, block.Stone, view.At(vec.Vec3{X: 2}))
	assert.Nil(t, view.Borders[grid.East], "за радиусом мира соседа нет")
	require.NotNil(t, view.Borders[grid.West])
	assert.Equal(t, block.Dirt, view.Borders[grid.West][2+5*2])
}

func TestField_SnapshotMeshesWithNeighbourCulling(t *testing.T) {
	f := newTestField(t)
	// Два блока по разные стороны границы секторов
	require.NoError(t, f.SetBlock(vec.Vec3{X: 2}, block.Stone))
	require.NoError(t, f.SetBlock(vec.Vec3{X: 3}, block.Stone))

	view, ok := f.SnapshotSector(sectorOf(t, f, vec.Vec3{}))
	require.True(t, ok)

	m := mesh.NewMesher(f.Table()).Build(view, f.Grid())
	assert.Equal(t, 5, m.QuadCount(), "грань, закрытая блоком соседа, не строится")
}

func TestGenerator_Deterministic(t *testing.T) {
	a := newTestField(t)
	b := newTestField(t)

	require.NoError(t, NewGenerator(7, a.Table()).GenerateArea(a, 1))
	require.NoError(t, NewGenerator(7, b.Table()).GenerateArea(b, 1))

	r := a.Grid().WorldRadius()
	for x := -7; x <= 7; x += 3 {
		for y := -7; y <= 7; y += 3 {
			for z := -r; z <= r; z += 2 {
				pos := vec.Vec3{X: x, Y: y, Z: z}
				ka, _ := a.KindAt(pos)
				kb, _ := b.KindAt(pos)
				require.Equal(t, ka, kb, "позиция %v", pos)
			}
		}
	}
	assert.NotEmpty(t, a.DirtySectors())
}

func TestGenerator_Layers(t *testing.T) {
	f := newTestField(t)
	gen := NewGenerator(3, f.Table())
	gen.Amplitude = 1 // поверхность остаётся внутри центрального сектора
	require.NoError(t, gen.GenerateSector(f, vec.Vec3{}))

	height, n := gen.Height(0, 0)
	require.LessOrEqual(t, height, 1)
	require.GreaterOrEqual(t, height, -1)

	top, _ := f.KindAt(vec.Vec3{Z: height})
	assert.Equal(t, gen.kindFor(height, height, n), top)
	above, _ := f.KindAt(vec.Vec3{Z: height + 1})
	assert.Equal(t, block.Air, above)
}

func TestPlaceStructure(t *testing.T) {
	f := newTestField(t)
	s := block.Structure{Name: "ladder", Objects: []block.Placement{
		{Offset: vec.Vec3{}, Object: block.Object{Kind: block.ObjectLadder, Facing: grid.North}},
		{Offset: vec.Vec3{Z: 1}, Object: block.Object{Kind: block.ObjectLadder, Facing: grid.North}},
		{Offset: vec.Vec3{Z: 100}, Object: block.Object{Kind: block.ObjectLadder, Facing: grid.North}},
	}}
	require.NoError(t, f.PlaceStructure(s, vec.Vec3{X: 1}))

	_, ok := f.ObjectAt(vec.Vec3{X: 1, Z: 1})
	assert.True(t, ok)

	bad := block.Structure{Name: "bad", Objects: []block.Placement{
		{Object: block.Object{Kind: block.ObjectStairs, Facing: grid.Down}},
	}}
	assert.ErrorIs(t, f.PlaceStructure(bad, vec.Vec3{}), block.ErrInvalidFacing)
}
