package entity

import (
	"strings"

	"github.com/annel0/voxel-engine/internal/grid"
)

// MotionMode - режим движения тела
type MotionMode uint8

const (
	ModeGround MotionMode = iota // действует гравитация
	ModeClimb                    // на лестнице, гравитации нет
	ModeAir                      // свободный полёт, гравитации нет
)

// String возвращает имя режима
func (m MotionMode) String() string {
	switch m {
	case ModeGround:
		return "ground"
	case ModeClimb:
		return "climb"
	case ModeAir:
		return "air"
	default:
		return "unknown"
	}
}

// ParseMotionMode разбирает имя режима движения
func ParseMotionMode(name string) (MotionMode, bool) {
	for _, m := range []MotionMode{ModeGround, ModeClimb, ModeAir} {
		if m.String() == name {
			return m, true
		}
	}
	return 0, false
}

// Contact - набор флагов того, чего касается коллайдер.
// Сбрасывается в начале каждого тика и накапливается при разрешении.
type Contact uint8

const (
	ContactGround Contact = 1 << iota
	ContactLadder
	ContactStairsNorth
	ContactStairsWest
	ContactStairsSouth
	ContactStairsEast
)

// ContactStairs - любые ступени
const ContactStairs = ContactStairsNorth | ContactStairsWest | ContactStairsSouth | ContactStairsEast

// Has проверяет наличие всех флагов f
func (c Contact) Has(f Contact) bool {
	return c&f == f
}

// Any проверяет наличие хотя бы одного из флагов f
func (c Contact) Any(f Contact) bool {
	return c&f != 0
}

// StairsContact возвращает флаг ступеней для направления подъёма.
// Для вертикальных направлений возвращает 0.
func StairsContact(facing grid.Direction) Contact {
	switch facing {
	case grid.North:
		return ContactStairsNorth
	case grid.West:
		return ContactStairsWest
	case grid.South:
		return ContactStairsSouth
	case grid.East:
		return ContactStairsEast
	default:
		return 0
	}
}

// String перечисляет установленные флаги через "|"
func (c Contact) String() string {
	if c == 0 {
		return "none"
	}
	names := []struct {
		flag Contact
		name string
	}{
		{ContactGround, "ground"},
		{ContactLadder, "ladder"},
		{ContactStairsNorth, "stairs_north"},
		{ContactStairsWest, "stairs_west"},
		{ContactStairsSouth, "stairs_south"},
		{ContactStairsEast, "stairs_east"},
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if c.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
