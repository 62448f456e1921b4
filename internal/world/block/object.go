package block

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-engine/internal/grid"
)

// ErrInvalidFacing возвращается, если объект ориентирован вверх или вниз
var ErrInvalidFacing = errors.New("block: invalid object facing")

// ObjectKind представляет тип объекта, занимающего ячейку поверх блока
type ObjectKind uint8

const (
	ObjectNone ObjectKind = iota
	ObjectLadder
	ObjectStairs
	ObjectDoor
)

var objectKindNames = map[ObjectKind]string{
	ObjectNone:   "none",
	ObjectLadder: "ladder",
	ObjectStairs: "stairs",
	ObjectDoor:   "door",
}

// String возвращает имя типа объекта
func (k ObjectKind) String() string {
	if name, ok := objectKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseObjectKind разбирает имя типа объекта
func ParseObjectKind(name string) (ObjectKind, bool) {
	for k, n := range objectKindNames {
		if n == name {
			return k, true
		}
	}
	return ObjectNone, false
}

// Object - лестница, ступени или дверь в ячейке.
// Facing для ступеней - направление подъёма, для лестницы - сторона стены,
// к которой она прикреплена, для двери - сторона открывания.
type Object struct {
	Kind   ObjectKind
	Facing grid.Direction
	Open   bool
}

// Validate проверяет ориентацию объекта. Объекты не могут смотреть вверх или вниз.
func (o Object) Validate() error {
	if o.Kind == ObjectNone {
		return nil
	}
	if !o.Facing.IsHorizontal() {
		return fmt.Errorf("%w: %s facing %s", ErrInvalidFacing, o.Kind, o.Facing)
	}
	return nil
}

// Blocking сообщает, перекрывают ли формы объекта движение.
// Лестница по стене только выставляет контакт, ступени и двери твёрдые.
func (o Object) Blocking() bool {
	return o.Kind == ObjectDoor || o.Kind == ObjectStairs
}
