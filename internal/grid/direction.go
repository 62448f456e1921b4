package grid

import "github.com/annel0/voxel-engine/internal/vec"

// Direction представляет одно из шести направлений граней ячейки.
// Ось Z направлена вверх, Y - на север, X - на восток.
type Direction uint8

const (
	East  Direction = iota // +X
	West                   // -X
	North                  // +Y
	South                  // -Y
	Up                     // +Z
	Down                   // -Z
)

// Directions перечисляет все направления граней в фиксированном порядке
var Directions = [6]Direction{East, West, North, South, Up, Down}

// HorizontalDirections перечисляет стороны света
var HorizontalDirections = [4]Direction{East, West, North, South}

var directionOffsets = [6]vec.Vec3{
	East:  {X: 1},
	West:  {X: -1},
	North: {Y: 1},
	South: {Y: -1},
	Up:    {Z: 1},
	Down:  {Z: -1},
}

var directionNames = [6]string{
	East:  "east",
	West:  "west",
	North: "north",
	South: "south",
	Up:    "up",
	Down:  "down",
}

// Valid сообщает, является ли значение одним из шести направлений
func (d Direction) Valid() bool {
	return d <= Down
}

// String возвращает имя направления
func (d Direction) String() string {
	if !d.Valid() {
		return "invalid"
	}
	return directionNames[d]
}

// Offset возвращает единичное смещение в сторону направления
func (d Direction) Offset() vec.Vec3 {
	if !d.Valid() {
		return vec.Vec3{}
	}
	return directionOffsets[d]
}

// Axis возвращает индекс оси направления (0 - X, 1 - Y, 2 - Z)
func (d Direction) Axis() int {
	return int(d) / 2
}

// Sign возвращает знак направления вдоль его оси
func (d Direction) Sign() int {
	if d%2 == 0 {
		return 1
	}
	return -1
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	return d ^ 1
}

// IsHorizontal сообщает, лежит ли направление в горизонтальной плоскости
func (d Direction) IsHorizontal() bool {
	return d.Valid() && d < Up
}

// FaceDirection возвращает направление по оси и знаку
func FaceDirection(axis, sign int) Direction {
	d := Direction(axis * 2)
	if sign < 0 {
		d++
	}
	return d
}

// ParseDirection разбирает имя направления
func ParseDirection(name string) (Direction, bool) {
	for i, n := range directionNames {
		if n == name {
			return Direction(i), true
		}
	}
	return 0, false
}
