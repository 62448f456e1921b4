package block

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/vec"
)

// ErrMalformedTable возвращается для некорректной таблицы форм
var ErrMalformedTable = errors.New("block: malformed shape table")

// tableSchema описывает формат YAML-таблицы форм
const tableSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["blocks"],
  "additionalProperties": false,
  "definitions": {
    "box": {
      "type": "array",
      "items": {"type": "number"},
      "minItems": 6,
      "maxItems": 6
    },
    "boxes": {"type": "array", "items": {"$ref": "#/definitions/box"}}
  },
  "properties": {
    "blocks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "integer", "minimum": 0, "maximum": 65535},
          "name": {"type": "string", "minLength": 1},
          "solid": {"type": "boolean"},
          "texture_layer": {"type": "integer", "minimum": 0},
          "boxes": {"$ref": "#/definitions/boxes"}
        }
      }
    },
    "objects": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "ladder": {"$ref": "#/definitions/boxes"},
        "stairs": {"$ref": "#/definitions/boxes"},
        "door": {"$ref": "#/definitions/boxes"},
        "door_open": {"$ref": "#/definitions/boxes"}
      }
    },
    "structures": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "objects"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "objects": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["offset", "kind", "facing"],
              "additionalProperties": false,
              "properties": {
                "offset": {"type": "array", "items": {"type": "integer"}, "minItems": 3, "maxItems": 3},
                "kind": {"enum": ["ladder", "stairs", "door"]},
                "facing": {"enum": ["east", "west", "north", "south", "up", "down"]},
                "open": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  }
}`

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func schema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		compiledSchema, compiledSchemaErr = jsonschema.CompileString("shape_table.schema.json", tableSchema)
	})
	return compiledSchema, compiledSchemaErr
}

type tableFile struct {
	Blocks []struct {
		ID           uint16      `yaml:"id"`
		Name         string      `yaml:"name"`
		Solid        bool        `yaml:"solid"`
		TextureLayer *uint32     `yaml:"texture_layer"`
		Boxes        [][]float64 `yaml:"boxes"`
	} `yaml:"blocks"`
	Objects struct {
		Ladder   [][]float64 `yaml:"ladder"`
		Stairs   [][]float64 `yaml:"stairs"`
		Door     [][]float64 `yaml:"door"`
		DoorOpen [][]float64 `yaml:"door_open"`
	} `yaml:"objects"`
	Structures []struct {
		Name    string `yaml:"name"`
		Objects []struct {
			Offset []int  `yaml:"offset"`
			Kind   string `yaml:"kind"`
			Facing string `yaml:"facing"`
			Open   bool   `yaml:"open"`
		} `yaml:"objects"`
	} `yaml:"structures"`
}

// LoadTable читает таблицу форм из YAML-файла
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения таблицы форм %s: %w", path, err)
	}
	return ParseTable(data)
}

// ParseTable разбирает и проверяет таблицу форм.
// Формы объектов, не указанные в файле, берутся из DefaultTable.
func ParseTable(data []byte) (*Table, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}

	defaults := DefaultTable()
	t := newTable()
	t.objects = defaults.objects
	t.openDoor = defaults.openDoor

	for _, b := range file.Blocks {
		kind := Kind(b.ID)
		if _, dup := t.kinds[kind]; dup {
			return nil, fmt.Errorf("%w: duplicate block id %d", ErrMalformedTable, b.ID)
		}
		if _, dup := t.byName[b.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate block name %q", ErrMalformedTable, b.Name)
		}
		spec := KindSpec{Kind: kind, Name: b.Name, Solid: b.Solid, TextureLayer: uint32(kind)}
		if b.TextureLayer != nil {
			spec.TextureLayer = *b.TextureLayer
		}
		spec.Shapes = toBoxes(b.Boxes)
		if spec.Solid && len(spec.Shapes) == 0 {
			spec.Shapes = []vec.FloatBox{UnitCube}
		}
		t.addKind(spec)
	}

	overrides := map[ObjectKind][][]float64{
		ObjectLadder: file.Objects.Ladder,
		ObjectStairs: file.Objects.Stairs,
		ObjectDoor:   file.Objects.Door,
	}
	for kind, boxes := range overrides {
		if len(boxes) > 0 {
			t.objects[kind] = toBoxes(boxes)
		}
	}
	if len(file.Objects.DoorOpen) > 0 {
		t.openDoor = toBoxes(file.Objects.DoorOpen)
	}

	for _, s := range file.Structures {
		structure := Structure{Name: s.Name}
		for _, o := range s.Objects {
			kind, _ := ParseObjectKind(o.Kind)
			facing, _ := grid.ParseDirection(o.Facing)
			structure.Objects = append(structure.Objects, Placement{
				Offset: vec.Vec3{X: o.Offset[0], Y: o.Offset[1], Z: o.Offset[2]},
				Object: Object{Kind: kind, Facing: facing, Open: o.Open},
			})
		}
		t.structures[s.Name] = structure
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustParseTable разбирает таблицу или паникует. Предназначен для статических данных.
func MustParseTable(data []byte) *Table {
	t, err := ParseTable(data)
	if err != nil {
		panic(err)
	}
	return t
}

func validateSchema(data []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("ошибка компиляции схемы таблицы форм: %w", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	// Приводим YAML к JSON-совместимому виду, чтобы валидатор видел числа как float64
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	var doc interface{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	return nil
}

func toBoxes(raw [][]float64) []vec.FloatBox {
	out := make([]vec.FloatBox, 0, len(raw))
	for _, b := range raw {
		out = append(out, vec.NewFloatBox(mgl64.Vec3{b[0], b[1], b[2]}, mgl64.Vec3{b[3], b[4], b[5]}))
	}
	return out
}
