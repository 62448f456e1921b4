package physics

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

var bodyRadius = mgl64.Vec3{0.3, 0.3, 0.9}

// standing - центр тела чуть выше пола на z=0
var standing = mgl64.Vec3{0, 0, 1.41}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(DefaultConfig(), logging.NewWriterLogger("physics", io.Discard, logging.ERROR), nil)
	require.NoError(t, err)
	return r
}

func newTestField(t *testing.T) *world.Field {
	t.Helper()
	return world.NewField(grid.MustNew(1, 4, 7), block.DefaultTable())
}

// withFloor кладёт каменный пол 7x7 на уровне z=0
func withFloor(t *testing.T, f *world.Field) *world.Field {
	t.Helper()
	for x := -3; x <= 3; x++ {
		for y := -3; y <= 3; y++ {
			require.NoError(t, f.SetBlock(vec.Vec3{X: x, Y: y}, block.Stone))
		}
	}
	return f
}

func TestResolve_FreePathKeepsIntent(t *testing.T) {
	r := newTestResolver(t)
	f := newTestField(t)
	box := vec.BoxFromCenter(mgl64.Vec3{0, 0, 5}, bodyRadius)

	intent := mgl64.Vec3{0.3, -0.2, 0.1}
	res := r.Resolve(f, box, intent)

	assert.Equal(t, intent, res.Delta, "без препятствий смещение совпадает с намерением")
	assert.Equal(t, [3]float64{1, 1, 1}, res.Mask)
	assert.Zero(t, res.Contacts)
}

func TestResolve_WallClampsAxis(t *testing.T) {
	r := newTestResolver(t)
	f := newTestField(t)
	require.NoError(t, f.SetBlock(vec.Vec3{X: 2, Z: 1}, block.Stone))

	box := vec.BoxFromCenter(mgl64.Vec3{1, 0, 1}, bodyRadius)
	res := r.Resolve(f, box, mgl64.Vec3{0.5, 0.1, 0})

	assert.Less(t, res.Delta[0], 0.5)
	assert.InDelta(t, 0.2-r.Config().PullBackEpsilon, res.Delta[0], 1e-4, "тело останавливается у стены")
	assert.True(t, res.Blocked(0))
	assert.False(t, res.Blocked(1), "скольжение вдоль стены не блокируется")
	assert.InDelta(t, 0.1, res.Delta[1], 1e-12)

	moved := box.Translate(res.Delta)
	assert.False(t, moved.Overlaps(f.Grid().CellBox(vec.Vec3{X: 2, Z: 1})))
}

func TestResolve_EmbeddedBodyDoesNotMove(t *testing.T) {
	r := newTestResolver(t)
	f := newTestField(t)
	require.NoError(t, f.SetBlock(vec.Vec3{}, block.Stone))

	box := vec.BoxFromCenter(mgl64.Vec3{}, bodyRadius)
	res := r.Resolve(f, box, mgl64.Vec3{-0.5, 0, 0})

	assert.Zero(t, res.Delta[0])
	assert.True(t, res.Blocked(0))
}

func TestStep_FallsOntoGround(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	body := pop.Spawn(entity.EntityTypePlayer, standing, bodyRadius)
	state := NewState()

	for i := 0; i < 60; i++ {
		r.Tick(context.Background(), f, pop, state)
	}

	assert.True(t, body.Contacts.Has(entity.ContactGround))
	assert.Zero(t, body.Velocity[2], "вертикальная скорость гасится опорой")
	assert.GreaterOrEqual(t, body.Box.Min[2], 0.5)
	assert.Less(t, body.Box.Min[2], 0.501)
	assert.Equal(t, uint64(60), state.Tick())
}

func TestTick_Jump(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	body := pop.Spawn(entity.EntityTypePlayer, standing, bodyRadius)
	state := NewState()
	ctx := context.Background()

	// В воздухе прыжок не срабатывает
	state.Enqueue(Jump(body.ID))
	r.Tick(ctx, f, pop, state)
	assert.LessOrEqual(t, body.Velocity[2], 0.0)

	for i := 0; i < 30; i++ {
		r.Tick(ctx, f, pop, state)
	}
	require.True(t, body.Contacts.Has(entity.ContactGround))
	before := body.Box.Min[2]

	state.Enqueue(Jump(body.ID))
	r.Tick(ctx, f, pop, state)
	assert.Greater(t, body.Velocity[2], 0.0)
	assert.Greater(t, body.Box.Min[2], before)
	assert.False(t, body.Contacts.Has(entity.ContactGround))
}

func TestTick_LadderClimbAndRevert(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	ladder := vec.Vec3{Z: 1}
	require.NoError(t, f.SetObject(ladder, block.Object{Kind: block.ObjectLadder, Facing: grid.North}))

	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	body := pop.Spawn(entity.EntityTypePlayer, standing, bodyRadius)
	state := NewState()
	ctx := context.Background()

	r.Tick(ctx, f, pop, state)
	require.True(t, body.Contacts.Has(entity.ContactLadder))

	before := body.Box.Min[2]
	state.Enqueue(Climb(body.ID, 1))
	r.Tick(ctx, f, pop, state)
	assert.Equal(t, entity.ModeClimb, body.Mode)
	assert.Greater(t, body.Box.Min[2], before, "на лестнице тело поднимается без гравитации")
	assert.InDelta(t, r.Config().ClimbSpeed, body.Velocity[2], 1e-12)

	require.NoError(t, f.SetObject(ladder, block.Object{}))
	r.Tick(ctx, f, pop, state)
	assert.Equal(t, entity.ModeGround, body.Mode, "без лестницы режим возвращается к Ground")
	assert.False(t, body.Contacts.Has(entity.ContactLadder))
}

func TestTick_ClimbWithoutLadderIgnored(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	body := pop.Spawn(entity.EntityTypePlayer, standing, bodyRadius)
	state := NewState()

	state.Enqueue(Climb(body.ID, 1))
	r.Tick(context.Background(), f, pop, state)
	assert.Equal(t, entity.ModeGround, body.Mode)
}

func TestResolve_StairsContact(t *testing.T) {
	r := newTestResolver(t)
	f := newTestField(t)
	require.NoError(t, f.SetObject(vec.Vec3{Y: 1}, block.Object{Kind: block.ObjectStairs, Facing: grid.North}))

	// Низ тела на уровне середины ячейки ступеней, тело в северной половине
	box := vec.BoxFromCenter(mgl64.Vec3{0, 1.2, 0.9}, bodyRadius)
	res := r.Resolve(f, box, mgl64.Vec3{0, 0.5, 0})
	assert.True(t, res.Contacts.Has(entity.ContactStairsNorth))
	assert.True(t, res.Blocked(1), "верхняя ступень твёрдая")
	assert.Zero(t, res.Delta[1])

	// Над нижней частью ската контакта нет
	low := vec.BoxFromCenter(mgl64.Vec3{0, 0.75, 1.2}, bodyRadius)
	res = r.Resolve(f, low, mgl64.Vec3{})
	assert.False(t, res.Contacts.Any(entity.ContactStairs))
}

// walkNorth каждый тик двигает тело на север со скоростью 1.5
// и возвращает наибольшую высоту центра
func walkNorth(t *testing.T, r *Resolver, f VoxelField, ticks int) (*entity.Body, float64) {
	t.Helper()
	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	body := pop.Spawn(entity.EntityTypePlayer, standing, bodyRadius)
	state := NewState()
	ctx := context.Background()

	maxZ := body.Position()[2]
	for i := 0; i < ticks; i++ {
		state.Enqueue(Move(body.ID, mgl64.Vec3{0, 1.5, 0}))
		r.Tick(ctx, f, pop, state)
		maxZ = math.Max(maxZ, body.Position()[2])
	}
	return body, maxZ
}

func TestTick_WalksUpStairs(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	require.NoError(t, f.SetObject(vec.Vec3{Y: 1, Z: 1}, block.Object{Kind: block.ObjectStairs, Facing: grid.North}))

	body, maxZ := walkNorth(t, r, f, 60)

	assert.Greater(t, maxZ, 1.9, "тело поднимается по ступеням")
	assert.InDelta(t, 2.4, body.Position()[2], 0.01, "тело стоит на верхней ступени")
	assert.Greater(t, body.Position()[1], 1.2, "подъём не останавливает движение")
	assert.True(t, body.Contacts.Has(entity.ContactGround))
	assert.InDelta(t, 1.5, body.Velocity[1], 1e-12)
}

func TestTick_StaysOnStairTread(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	require.NoError(t, f.SetObject(vec.Vec3{Y: 1, Z: 1}, block.Object{Kind: block.ObjectStairs, Facing: grid.North}))

	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	body := pop.Spawn(entity.EntityTypePlayer, mgl64.Vec3{0, 0.65, 1.95}, bodyRadius)
	state := NewState()

	for i := 0; i < 60; i++ {
		r.Tick(context.Background(), f, pop, state)
	}

	assert.InDelta(t, 1.9, body.Position()[2], 0.01, "нижняя ступень держит тело")
	assert.True(t, body.Contacts.Has(entity.ContactGround))
	assert.Zero(t, body.Velocity[2])
}

func TestTick_WallIsNotStepped(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	require.NoError(t, f.SetBlock(vec.Vec3{Y: 1, Z: 1}, block.Stone))

	body, maxZ := walkNorth(t, r, f, 60)

	assert.Less(t, maxZ, 1.42, "на сплошной блок тело не поднимается")
	assert.Less(t, body.Box.Max[1], 0.5)
	assert.Zero(t, body.Velocity[1])
}

func TestTick_StairsBackIsNotStepped(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	// Подъём направлен на юг, навстречу телу
	require.NoError(t, f.SetObject(vec.Vec3{Y: 1, Z: 1}, block.Object{Kind: block.ObjectStairs, Facing: grid.South}))

	body, maxZ := walkNorth(t, r, f, 60)

	assert.Less(t, maxZ, 1.42)
	assert.Less(t, body.Box.Max[1], 0.5)
}

func TestClimbing(t *testing.T) {
	north := mgl64.Vec3{0, 1, 0}
	assert.True(t, climbing(entity.ContactStairsNorth, north))
	assert.False(t, climbing(entity.ContactStairsSouth, north), "спуск навстречу подъёму")
	assert.False(t, climbing(entity.ContactStairsEast, north), "подъём поперёк движения")
	assert.True(t, climbing(entity.ContactStairsEast|entity.ContactGround, mgl64.Vec3{0.5, 0.5, 0}))
	assert.False(t, climbing(0, north))
}

func TestResolve_VerticalAxisFirst(t *testing.T) {
	r := newTestResolver(t)
	f := newTestField(t)
	// Уступ: верх блока на z=0.5, тело чуть выше и левее
	require.NoError(t, f.SetBlock(vec.Vec3{X: 1}, block.Stone))
	box := vec.BoxFromCenter(mgl64.Vec3{0, 0, 1.45}, bodyRadius)

	res := r.Resolve(f, box, mgl64.Vec3{0.5, 0, -0.3})

	// Тело сначала опускается ниже верха уступа, затем упирается в его бок.
	// При горизонтальной оси первой оно бы прошло над уступом и встало на него.
	assert.False(t, res.Blocked(2))
	assert.InDelta(t, -0.3, res.Delta[2], 1e-12)
	assert.True(t, res.Blocked(0))
	assert.InDelta(t, 0.2, res.Delta[0], 1e-3)
	assert.False(t, res.Contacts.Has(entity.ContactGround))

	// Тот же сдвиг по частям в обратном порядке осей даёт другой итог
	x := r.Resolve(f, box, mgl64.Vec3{0.5, 0, 0})
	z := r.Resolve(f, box.Translate(x.Delta), mgl64.Vec3{0, 0, -0.3})
	assert.InDelta(t, 0.5, x.Delta[0], 1e-12)
	assert.True(t, z.Blocked(2))
	assert.NotEqual(t, res.Delta, x.Delta.Add(z.Delta))
}

func TestUnderRamp(t *testing.T) {
	cell := vec.BoxFromCenter(mgl64.Vec3{}, mgl64.Vec3{0.5, 0.5, 0.5})
	southHalf := vec.NewFloatBox(mgl64.Vec3{-0.2, -0.5, 0}, mgl64.Vec3{0.2, -0.2, 1})
	northHalf := vec.NewFloatBox(mgl64.Vec3{-0.2, 0.1, 0}, mgl64.Vec3{0.2, 0.4, 1})
	eastHalf := vec.NewFloatBox(mgl64.Vec3{0.1, -0.2, 0}, mgl64.Vec3{0.4, 0.2, 1})

	tests := []struct {
		name   string
		body   vec.FloatBox
		facing grid.Direction
		want   bool
	}{
		{"north: южная половина над скатом", southHalf, grid.North, false},
		{"north: северная половина под скатом", northHalf, grid.North, true},
		{"south: южная половина под скатом", southHalf, grid.South, true},
		{"south: северная половина над скатом", northHalf, grid.South, false},
		{"east: восточная половина под скатом", eastHalf, grid.East, true},
		{"west: восточная половина над скатом", eastHalf, grid.West, false},
		{"up: недопустимая ориентация", northHalf, grid.Up, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, underRamp(tt.body, cell, tt.facing))
		})
	}
}

func TestResolve_Doors(t *testing.T) {
	r := newTestResolver(t)
	f := newTestField(t)
	door := vec.Vec3{Y: 2, Z: 1}
	box := vec.BoxFromCenter(mgl64.Vec3{0, 0, 1}, bodyRadius)

	require.NoError(t, f.SetObject(door, block.Object{Kind: block.ObjectDoor, Facing: grid.North}))
	res := r.Resolve(f, box, mgl64.Vec3{0, 3, 0})
	assert.True(t, res.Blocked(1), "закрытая дверь блокирует проход")

	require.NoError(t, f.SetObject(door, block.Object{Kind: block.ObjectDoor, Facing: grid.North, Open: true}))
	res = r.Resolve(f, box, mgl64.Vec3{0, 3, 0})
	assert.False(t, res.Blocked(1), "в открытую дверь тело проходит")
}

func TestTick_MissingBodyDropped(t *testing.T) {
	r := newTestResolver(t)
	f := withFloor(t, newTestField(t))
	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	body := pop.Spawn(entity.EntityTypePlayer, standing, bodyRadius)
	state := NewState()

	state.Enqueue(Move(999, mgl64.Vec3{1, 0, 0}), Move(body.ID, mgl64.Vec3{0, 1, 0}))
	assert.NotPanics(t, func() { r.Tick(context.Background(), f, pop, state) })
	assert.Zero(t, state.Pending())
	assert.InDelta(t, 1, body.Velocity[1], 1e-12)
	assert.Zero(t, body.Velocity[0])
}

func TestTick_AirMode(t *testing.T) {
	r := newTestResolver(t)
	f := newTestField(t)
	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	body := pop.Spawn(entity.EntityTypePlayer, mgl64.Vec3{0, 0, 5}, bodyRadius)
	state := NewState()
	ctx := context.Background()

	state.Enqueue(SetMode(body.ID, entity.ModeAir))
	r.Tick(ctx, f, pop, state)
	assert.InDelta(t, 5, body.Position()[2], 1e-12, "в режиме Air гравитации нет")

	state.Enqueue(Move(body.ID, mgl64.Vec3{0, 0, 6}))
	r.Tick(ctx, f, pop, state)
	assert.InDelta(t, 5.1, body.Position()[2], 1e-9)
}

// panicField паникует при обращении к ячейкам с X > 40
type panicField struct {
	*world.Field
}

func (p panicField) BlockAt(pos vec.Vec3) (block.Block, bool) {
	if pos.X > 40 {
		panic("повреждённые данные сектора")
	}
	return p.Field.BlockAt(pos)
}

func TestTick_PanicIsolatedPerBody(t *testing.T) {
	r := newTestResolver(t)
	f := panicField{newTestField(t)}
	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	bad := pop.Spawn(entity.EntityTypeNPC, mgl64.Vec3{50, 0, 5}, bodyRadius)
	good := pop.Spawn(entity.EntityTypePlayer, mgl64.Vec3{0, 0, 5}, bodyRadius)
	state := NewState()

	require.NotPanics(t, func() { r.Tick(context.Background(), f, pop, state) })
	assert.Less(t, good.Position()[2], 5.0, "остальные тела обрабатываются")
	assert.InDelta(t, 5, bad.Position()[2], 1e-12)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TickRate = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.BisectionSteps = 0
	_, err := NewResolver(cfg, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.StepHeight = 1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "подъём на целый блок запрещён")

	assert.InDelta(t, 1.0/60, DefaultConfig().Step(), 1e-12)
}
