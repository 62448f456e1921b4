package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/metrics"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

const zAxis = 2

// Оси разрешаются в порядке Z, X, Y: опора под телом определяется
// до расчёта горизонтального скольжения.
var axisOrder = [3]int{zAxis, 0, 1}

var axisNames = [3]string{"x", "y", "z"}

// Result - итог разрешения одного перемещения
type Result struct {
	Delta    mgl64.Vec3     // применённое смещение
	Mask     [3]float64     // 1 - ось свободна, 0 - движение по оси остановлено
	Contacts entity.Contact // контакты, накопленные за разрешение
}

// Blocked сообщает, было ли остановлено движение по оси
func (r Result) Blocked(axis int) bool {
	return r.Mask[axis] == 0
}

// Resolver перемещает тела через поле блоков по одной оси за раз
type Resolver struct {
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.Physics
}

// NewResolver создаёт резолвер. logger и m могут быть nil.
func NewResolver(cfg Config, logger *logging.Logger, m *metrics.Physics) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.GetPhysicsLogger()
	}
	return &Resolver{cfg: cfg, logger: logger, metrics: m}, nil
}

// Config возвращает параметры резолвера
func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve находит допустимую часть смещения intent для бокса box.
// По каждой оси смещение не превышает intent по модулю.
func (r *Resolver) Resolve(field VoxelField, box vec.FloatBox, intent mgl64.Vec3) Result {
	res := Result{Mask: [3]float64{1, 1, 1}}
	cur := box

	for _, axis := range axisOrder {
		// Контакты считаются по положению до смещения вдоль оси
		res.Contacts |= r.contacts(field, cur)

		d := intent[axis]
		if d == 0 {
			continue
		}

		move := d
		if t := r.freeFraction(field, cur, axis, d); t < 1 {
			move = math.Copysign(math.Max(0, t*math.Abs(d)-r.cfg.PullBackEpsilon), d)
			res.Mask[axis] = 0
			if axis == zAxis && d < 0 {
				res.Contacts |= entity.ContactGround
			}
		}
		cur = cur.TranslateAxis(axis, move)
		res.Delta[axis] = move
	}
	return res
}

// freeFraction возвращает наибольшую найденную долю t смещения d по оси,
// при которой заметённый бокс не пересекает твёрдые формы.
func (r *Resolver) freeFraction(field VoxelField, box vec.FloatBox, axis int, d float64) float64 {
	free := func(t float64) bool {
		return !blocked(field, vec.Sweep(box, box.TranslateAxis(axis, d*t)))
	}
	if free(1) {
		return 1
	}

	lo, hi := 0.0, 1.0
	for i := 0; i < r.cfg.BisectionSteps; i++ {
		mid := (lo + hi) / 2
		if free(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// contacts собирает флаги лестниц и ступеней для неподвижного бокса
func (r *Resolver) contacts(field VoxelField, box vec.FloatBox) entity.Contact {
	var c entity.Contact
	g := field.Grid()
	for _, pos := range g.CellsOverlapping(box) {
		obj, ok := field.ObjectAt(pos)
		if !ok {
			continue
		}
		switch obj.Kind {
		case block.ObjectLadder:
			c |= entity.ContactLadder
		case block.ObjectStairs:
			if underRamp(box, g.CellBox(pos), obj.Facing) {
				c |= entity.StairsContact(obj.Facing)
			}
		}
	}
	return c
}

// underRamp проверяет, лежит ли низ тела под плоскостью подъёма ступеней.
// Плоскость идёт под 45 градусов от нижнего края ячейки к верхнему
// в направлении facing.
func underRamp(body, cell vec.FloatBox, facing grid.Direction) bool {
	clipped := intersect(body, cell)
	bottom := body.Min[zAxis] - cell.Min[zAxis]

	switch facing {
	case grid.North:
		return bottom < clipped.Max[1]-cell.Min[1]
	case grid.East:
		return bottom < clipped.Max[0]-cell.Min[0]
	case grid.South:
		return bottom < cell.Max[1]-clipped.Min[1]
	case grid.West:
		return bottom < cell.Max[0]-clipped.Min[0]
	default:
		// Поле не принимает ступени с вертикальной ориентацией
		return false
	}
}

func intersect(a, b vec.FloatBox) vec.FloatBox {
	return vec.FloatBox{
		Min: mgl64.Vec3{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1]), math.Max(a.Min[2], b.Min[2])},
		Max: mgl64.Vec3{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1]), math.Min(a.Max[2], b.Max[2])},
	}
}

// Step интегрирует скорость тела за dt секунд и перемещает его с учётом коллизий.
// Контакты тела перезаписываются результатом разрешения.
func (r *Resolver) Step(field VoxelField, b *entity.Body, dt float64) Result {
	accel := b.Accel
	if b.Mode == entity.ModeGround {
		accel[zAxis] -= r.cfg.Gravity
	}
	intent := b.Velocity.Mul(dt).Add(accel.Mul(0.5 * dt * dt))
	velocity := b.Velocity.Add(accel.Mul(dt))

	b.Contacts = 0
	res := r.Resolve(field, b.Box, intent)
	if raised, ok := r.stepUp(field, b.Box, intent, res); ok {
		res = raised
	}

	b.Box = b.Box.Translate(res.Delta)
	for axis := 0; axis < 3; axis++ {
		if res.Blocked(axis) {
			velocity[axis] = 0
			r.metrics.BlockedAxis(axisNames[axis])
		}
	}
	b.Velocity = velocity
	b.Contacts = res.Contacts

	if b.Mode == entity.ModeClimb && !b.Contacts.Has(entity.ContactLadder) {
		b.Mode = entity.ModeGround
		r.logger.Trace("Тело %d отпустило лестницу", b.ID)
	}
	return res
}

// stepUp повторяет горизонтальную часть intent с боксом, поднятым на высоту
// ступени. Срабатывает, когда стоящее на опоре тело упёрлось в препятствие,
// а в намеченном положении у него есть контакт со ступенями, поднимающимися
// по ходу движения.
func (r *Resolver) stepUp(field VoxelField, box vec.FloatBox, intent mgl64.Vec3, res Result) (Result, bool) {
	if r.cfg.StepHeight == 0 || !res.Contacts.Has(entity.ContactGround) {
		return res, false
	}
	if !res.Blocked(0) && !res.Blocked(1) {
		return res, false
	}

	base := box.TranslateAxis(zAxis, res.Delta[zAxis])
	horizontal := mgl64.Vec3{intent[0], intent[1], 0}
	if !climbing(r.contacts(field, base.Translate(horizontal)), horizontal) {
		return res, false
	}

	lift := r.cfg.StepHeight * field.Grid().CellSize()
	if r.freeFraction(field, base, zAxis, lift) < 1 {
		return res, false
	}
	raised := r.Resolve(field, base.TranslateAxis(zAxis, lift), horizontal)
	if math.Abs(raised.Delta[0])+math.Abs(raised.Delta[1]) <= math.Abs(res.Delta[0])+math.Abs(res.Delta[1]) {
		return res, false
	}

	return Result{
		Delta:    mgl64.Vec3{raised.Delta[0], raised.Delta[1], res.Delta[zAxis] + lift},
		Mask:     [3]float64{raised.Mask[0], raised.Mask[1], res.Mask[zAxis]},
		Contacts: res.Contacts | raised.Contacts,
	}, true
}

// climbing проверяет, есть ли среди контактов ступени, подъём которых
// направлен по ходу горизонтального смещения
func climbing(c entity.Contact, horizontal mgl64.Vec3) bool {
	for _, d := range grid.HorizontalDirections {
		off := d.Offset()
		if c.Has(entity.StairsContact(d)) && float64(off.X)*horizontal[0]+float64(off.Y)*horizontal[1] > 0 {
			return true
		}
	}
	return false
}
