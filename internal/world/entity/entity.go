package entity

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/vec"
)

// ID - уникальный идентификатор тела в популяции
type ID uint64

// EntityType представляет тип сущности
type EntityType uint16

const (
	EntityTypePlayer EntityType = iota
	EntityTypeNPC
	EntityTypeAnimal
	EntityTypeItem
	EntityTypeProjectile
)

var entityTypeNames = map[EntityType]string{
	EntityTypePlayer:     "player",
	EntityTypeNPC:        "npc",
	EntityTypeAnimal:     "animal",
	EntityTypeItem:       "item",
	EntityTypeProjectile: "projectile",
}

// String возвращает имя типа сущности
func (t EntityType) String() string {
	if name, ok := entityTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseEntityType разбирает имя типа сущности
func ParseEntityType(name string) (EntityType, bool) {
	for t, n := range entityTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Body - кинематическое тело: выровненный по осям бокс в мировых единицах,
// скорость, режим движения и контакты последнего тика.
type Body struct {
	ID       ID
	Type     EntityType
	Box      vec.FloatBox // Текущее положение коллайдера в мире
	Velocity mgl64.Vec3   // Текущая скорость (мировые единицы в секунду)
	Accel    mgl64.Vec3   // Внешнее ускорение без учёта гравитации
	Mode     MotionMode
	Contacts Contact
}

// NewBody создаёт тело с центром center и полуразмерами radius
func NewBody(id ID, typ EntityType, center, radius mgl64.Vec3) *Body {
	return &Body{
		ID:   id,
		Type: typ,
		Box:  vec.BoxFromCenter(center, radius),
		Mode: ModeGround,
	}
}

// Position возвращает центр коллайдера
func (b *Body) Position() mgl64.Vec3 {
	return b.Box.Center()
}

// Teleport переносит тело в точку center без проверки коллизий и обнуляет скорость
func (b *Body) Teleport(center mgl64.Vec3) {
	b.Box = vec.BoxFromCenter(center, b.Box.Radius())
	b.Velocity = mgl64.Vec3{}
}
