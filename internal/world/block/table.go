package block

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/vec"
)

// KindSpec описывает тип блока в таблице форм
type KindSpec struct {
	Kind         Kind
	Name         string
	Solid        bool
	TextureLayer uint32
	Shapes       []vec.FloatBox
}

// Placement - объект со смещением внутри структуры
type Placement struct {
	Offset vec.Vec3
	Object Object
}

// Structure - именованный набор объектов, размещаемый генератором мира
type Structure struct {
	Name    string
	Objects []Placement
}

// Table - статическая таблица форм блоков и объектов.
// Загружается один раз при старте и дальше только читается.
type Table struct {
	kinds      map[Kind]KindSpec
	byName     map[string]Kind
	objects    map[ObjectKind][]vec.FloatBox // формы в канонической ориентации (north)
	openDoor   []vec.FloatBox
	structures map[string]Structure
}

// UnitCube - форма полного блока в локальных координатах ячейки
var UnitCube = vec.FloatBox{Min: mgl64.Vec3{-0.5, -0.5, -0.5}, Max: mgl64.Vec3{0.5, 0.5, 0.5}}

func newTable() *Table {
	return &Table{
		kinds:      make(map[Kind]KindSpec),
		byName:     make(map[string]Kind),
		objects:    make(map[ObjectKind][]vec.FloatBox),
		structures: make(map[string]Structure),
	}
}

// DefaultTable возвращает встроенную таблицу форм
func DefaultTable() *Table {
	t := newTable()
	for kind, name := range builtinKindNames {
		spec := KindSpec{Kind: kind, Name: name, TextureLayer: uint32(kind)}
		if kind != Air {
			spec.Solid = true
			spec.Shapes = []vec.FloatBox{UnitCube}
		}
		t.addKind(spec)
	}

	// Ступени: нижняя половина и задняя верхняя четверть, подъём на север
	t.objects[ObjectStairs] = []vec.FloatBox{
		box(-0.5, -0.5, -0.5, 0.5, 0.5, 0),
		box(-0.5, 0, 0, 0.5, 0.5, 0.5),
	}
	// Лестница: тонкая пластина у северной стены
	t.objects[ObjectLadder] = []vec.FloatBox{
		box(-0.4, 0.4, -0.5, 0.4, 0.5, 0.5),
	}
	// Закрытая дверь: полотно по центру ячейки
	t.objects[ObjectDoor] = []vec.FloatBox{
		box(-0.5, -0.1, -0.5, 0.5, 0.1, 0.5),
	}
	// Открытая дверь: два косяка по краям проёма
	t.openDoor = []vec.FloatBox{
		box(-0.5, -0.1, -0.5, -0.4, 0.1, 0.5),
		box(0.4, -0.1, -0.5, 0.5, 0.1, 0.5),
	}
	return t
}

func box(x0, y0, z0, x1, y1, z1 float64) vec.FloatBox {
	return vec.NewFloatBox(mgl64.Vec3{x0, y0, z0}, mgl64.Vec3{x1, y1, z1})
}

func (t *Table) addKind(spec KindSpec) {
	t.kinds[spec.Kind] = spec
	t.byName[spec.Name] = spec.Kind
}

// Block возвращает запись блока для типа. Неизвестные типы считаются воздухом.
func (t *Table) Block(kind Kind) Block {
	spec, ok := t.kinds[kind]
	if !ok {
		return Block{Kind: Air}
	}
	return Block{Kind: spec.Kind, Solid: spec.Solid, Shapes: spec.Shapes}
}

// Spec возвращает описание типа блока
func (t *Table) Spec(kind Kind) (KindSpec, bool) {
	spec, ok := t.kinds[kind]
	return spec, ok
}

// KindByName возвращает тип блока по имени
func (t *Table) KindByName(name string) (Kind, bool) {
	kind, ok := t.byName[name]
	return kind, ok
}

// TextureLayer возвращает слой текстурного массива для типа блока
func (t *Table) TextureLayer(kind Kind) uint32 {
	return t.kinds[kind].TextureLayer
}

// IsSolid сообщает, является ли тип блока твёрдым
func (t *Table) IsSolid(kind Kind) bool {
	return t.kinds[kind].Solid
}

// Structure возвращает структуру по имени
func (t *Table) Structure(name string) (Structure, bool) {
	s, ok := t.structures[name]
	return s, ok
}

// ObjectShapes возвращает формы объекта в локальных координатах ячейки,
// повёрнутые по его ориентации.
func (t *Table) ObjectShapes(o Object) []vec.FloatBox {
	shapes := t.objects[o.Kind]
	if o.Kind == ObjectDoor && o.Open {
		shapes = t.openDoor
	}
	out := make([]vec.FloatBox, len(shapes))
	for i, s := range shapes {
		out[i] = RotateBox(s, o.Facing)
	}
	return out
}

// RotateBox поворачивает бокс вокруг вертикальной оси из канонической
// ориентации (north) в направление facing.
func RotateBox(b vec.FloatBox, facing grid.Direction) vec.FloatBox {
	return vec.NewFloatBox(rotatePoint(b.Min, facing), rotatePoint(b.Max, facing))
}

func rotatePoint(p mgl64.Vec3, facing grid.Direction) mgl64.Vec3 {
	switch facing {
	case grid.East:
		return mgl64.Vec3{p[1], -p[0], p[2]}
	case grid.South:
		return mgl64.Vec3{-p[0], -p[1], p[2]}
	case grid.West:
		return mgl64.Vec3{-p[1], p[0], p[2]}
	default:
		return p
	}
}

// validate проверяет согласованность таблицы
func (t *Table) validate() error {
	air, ok := t.kinds[Air]
	if !ok || air.Solid {
		return fmt.Errorf("%w: air must be declared and non-solid", ErrMalformedTable)
	}
	for kind, spec := range t.kinds {
		if spec.Solid && len(spec.Shapes) == 0 {
			return fmt.Errorf("%w: solid kind %q (%d) has no shapes", ErrMalformedTable, spec.Name, kind)
		}
		for _, s := range spec.Shapes {
			if !UnitCube.Contains(s) {
				return fmt.Errorf("%w: shape of %q leaves the unit cell", ErrMalformedTable, spec.Name)
			}
		}
	}
	for _, kind := range []ObjectKind{ObjectLadder, ObjectStairs, ObjectDoor} {
		if len(t.objects[kind]) == 0 {
			return fmt.Errorf("%w: object %s has no shapes", ErrMalformedTable, kind)
		}
	}
	for name, s := range t.structures {
		for _, p := range s.Objects {
			if err := p.Object.Validate(); err != nil {
				return fmt.Errorf("structure %q at %v: %w", name, p.Offset, err)
			}
		}
	}
	return nil
}

// Structures возвращает все структуры таблицы, упорядоченные по имени
func (t *Table) Structures() []Structure {
	out := make([]Structure, 0, len(t.structures))
	for _, s := range t.structures {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
