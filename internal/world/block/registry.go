package block

import (
	"github.com/annel0/voxel-engine/internal/vec"
)

// Kind представляет тип блока. Нулевое значение - воздух.
type Kind uint16

// Константы типов блоков
const (
	// Базовые типы блоков
	Air   Kind = iota // 0
	Stone             // 1
	Dirt              // 2
	Grass             // 3
	Sand              // 4
	Wood              // 5
	Metal             // 6

	// Для возможности расширения, оставляем промежуток до пользовательских типов
	firstCustomKind Kind = 100
)

var builtinKindNames = map[Kind]string{
	Air:   "air",
	Stone: "stone",
	Dirt:  "dirt",
	Grass: "grass",
	Sand:  "sand",
	Wood:  "wood",
	Metal: "metal",
}

// IsAir сообщает, что тип - воздух
func (k Kind) IsAir() bool {
	return k == Air
}

// Block - запись о блоке в ячейке: тип, твёрдость и коллизионные формы.
// Формы заданы в локальных координатах ячейки единичного размера [-0.5, 0.5]^3.
type Block struct {
	Kind   Kind
	Solid  bool
	Shapes []vec.FloatBox
}

// IsAir сообщает, что блок пустой
func (b Block) IsAir() bool {
	return b.Kind == Air
}
