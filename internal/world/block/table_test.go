package block

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/vec"
)

const sampleTable = `
blocks:
  - id: 0
    name: air
  - id: 1
    name: stone
    solid: true
    texture_layer: 4
  - id: 7
    name: slab
    solid: true
    boxes:
      - [-0.5, -0.5, -0.5, 0.5, 0.5, 0]
objects:
  ladder:
    - [-0.45, 0.45, -0.5, 0.45, 0.5, 0.5]
structures:
  - name: tower
    objects:
      - offset: [0, 0, 0]
        kind: ladder
        facing: north
      - offset: [0, 0, 1]
        kind: stairs
        facing: east
`

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	require.NoError(t, table.validate())

	assert.False(t, table.IsSolid(Air))
	assert.True(t, table.IsSolid(Stone))

	stone := table.Block(Stone)
	require.Len(t, stone.Shapes, 1)
	assert.Equal(t, UnitCube, stone.Shapes[0])

	unknown := table.Block(Kind(999))
	assert.True(t, unknown.IsAir(), "неизвестный тип считается воздухом")

	kind, ok := table.KindByName("grass")
	require.True(t, ok)
	assert.Equal(t, Grass, kind)
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(sampleTable))
	require.NoError(t, err)

	assert.Equal(t, uint32(4), table.TextureLayer(Stone))
	assert.Equal(t, uint32(7), table.TextureLayer(Kind(7)), "по умолчанию слой совпадает с id")

	slab := table.Block(Kind(7))
	require.Len(t, slab.Shapes, 1)
	assert.Equal(t, 0.0, slab.Shapes[0].Max[2])

	ladder := table.ObjectShapes(Object{Kind: ObjectLadder, Facing: grid.North})
	require.Len(t, ladder, 1)
	assert.InDelta(t, 0.45, ladder[0].Min[1], 1e-9, "форма лестницы берётся из файла")

	stairs := table.ObjectShapes(Object{Kind: ObjectStairs, Facing: grid.North})
	assert.Len(t, stairs, 2, "незаданные формы берутся из встроенной таблицы")

	tower, ok := table.Structure("tower")
	require.True(t, ok)
	require.Len(t, tower.Objects, 2)
	assert.Equal(t, vec.Vec3{Z: 1}, tower.Objects[1].Offset)
	assert.Equal(t, grid.East, tower.Objects[1].Object.Facing)
}

func TestParseTable_Malformed(t *testing.T) {
	cases := map[string]string{
		"not yaml":          "blocks: [",
		"no blocks":         "objects: {}",
		"short box":         "blocks:\n  - id: 0\n    name: air\n  - id: 1\n    name: a\n    solid: true\n    boxes: [[0, 0, 0]]\n",
		"unknown field":     "blocks:\n  - id: 0\n    name: air\n    colour: red\n",
		"no air":            "blocks:\n  - id: 1\n    name: stone\n    solid: true\n",
		"duplicate id":      "blocks:\n  - id: 0\n    name: air\n  - id: 0\n    name: void\n",
		"box outside cell":  "blocks:\n  - id: 0\n    name: air\n  - id: 1\n    name: big\n    solid: true\n    boxes: [[-1, -1, -1, 1, 1, 1]]\n",
		"unknown structure": "blocks:\n  - id: 0\n    name: air\nstructures:\n  - name: s\n    objects:\n      - {offset: [0, 0, 0], kind: chest, facing: north}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(data))
			assert.ErrorIs(t, err, ErrMalformedTable)
		})
	}
}

func TestParseTable_InvalidStairFacing(t *testing.T) {
	data := `
blocks:
  - id: 0
    name: air
structures:
  - name: broken
    objects:
      - offset: [0, 0, 0]
        kind: stairs
        facing: up
`
	_, err := ParseTable([]byte(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFacing, "ступени вверх - ошибка конфигурации")

	assert.Panics(t, func() { MustParseTable([]byte(data)) })
}

func TestObjectValidate(t *testing.T) {
	assert.NoError(t, Object{Kind: ObjectStairs, Facing: grid.West}.Validate())
	assert.ErrorIs(t, Object{Kind: ObjectStairs, Facing: grid.Down}.Validate(), ErrInvalidFacing)
	assert.NoError(t, Object{}.Validate(), "пустой объект всегда корректен")

	assert.True(t, Object{Kind: ObjectDoor}.Blocking())
	assert.True(t, Object{Kind: ObjectStairs, Facing: grid.North}.Blocking())
	assert.False(t, Object{Kind: ObjectLadder}.Blocking())

	kind, ok := ParseObjectKind("door")
	assert.True(t, ok)
	assert.Equal(t, ObjectDoor, kind)
	_, ok = ParseObjectKind("chest")
	assert.False(t, ok)
}

func TestRotateBox(t *testing.T) {
	// Бокс у северной стены
	north := vec.NewFloatBox(mgl64.Vec3{-0.5, 0.4, -0.5}, mgl64.Vec3{0.5, 0.5, 0.5})

	east := RotateBox(north, grid.East)
	assert.True(t, east.ApproxEq(vec.NewFloatBox(mgl64.Vec3{0.4, -0.5, -0.5}, mgl64.Vec3{0.5, 0.5, 0.5}), 1e-9), "east: %v", east)

	south := RotateBox(north, grid.South)
	assert.True(t, south.ApproxEq(vec.NewFloatBox(mgl64.Vec3{-0.5, -0.5, -0.5}, mgl64.Vec3{0.5, -0.4, 0.5}), 1e-9), "south: %v", south)

	west := RotateBox(north, grid.West)
	assert.True(t, west.ApproxEq(vec.NewFloatBox(mgl64.Vec3{-0.5, -0.5, -0.5}, mgl64.Vec3{-0.4, 0.5, 0.5}), 1e-9), "west: %v", west)

	assert.Equal(t, north, RotateBox(north, grid.North))
}

func TestObjectShapes_OpenDoor(t *testing.T) {
	table := DefaultTable()
	closed := table.ObjectShapes(Object{Kind: ObjectDoor, Facing: grid.North})
	open := table.ObjectShapes(Object{Kind: ObjectDoor, Facing: grid.North, Open: true})
	assert.Len(t, closed, 1)
	assert.Len(t, open, 2, "открытая дверь - два косяка")
}
