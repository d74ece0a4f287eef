package roads

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownRoadType is returned when a road type name or id is not in the catalogue.
var ErrUnknownRoadType = errors.New("roads: unknown road type")

// Category is the surface class of a road.
type Category uint8

const (
	CategoryDirt Category = iota
	CategoryGravel
	CategoryCobble
	CategoryPaved
)

var categoryNames = map[Category]string{
	CategoryDirt:   "dirt",
	CategoryGravel: "gravel",
	CategoryCobble: "cobble",
	CategoryPaved:  "paved",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "category(" + strconv.Itoa(int(c)) + ")"
}

// Valid reports whether c is in the catalogue.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// Type is a road category plus a visual variant.
type Type struct {
	Category Category
	Variant  uint8
}

// DefaultType is used for roads built without an explicit type.
var DefaultType = Type{Category: CategoryDirt}

// ID returns the stable numeric id used for persistence.
func (t Type) ID() int {
	return int(t.Category)<<8 | int(t.Variant)
}

func (t Type) String() string {
	return fmt.Sprintf("%s/%d", t.Category, t.Variant)
}

// TypeFromID reverses Type.ID.
func TypeFromID(id int) (Type, error) {
	if id < 0 || id > 0xffff {
		return Type{}, fmt.Errorf("%w: id %d", ErrUnknownRoadType, id)
	}
	t := Type{Category: Category(id >> 8), Variant: uint8(id & 0xff)}
	if !t.Category.Valid() {
		return Type{}, fmt.Errorf("%w: id %d", ErrUnknownRoadType, id)
	}
	return t, nil
}

// ParseType accepts "category" or "category/variant", for example "cobble/1".
func ParseType(value string) (Type, error) {
	name, variant, hasVariant := strings.Cut(strings.ToLower(strings.TrimSpace(value)), "/")
	var t Type
	found := false
	for c, n := range categoryNames {
		if n == name {
			t.Category = c
			found = true
			break
		}
	}
	if !found {
		return Type{}, fmt.Errorf("%w: %q", ErrUnknownRoadType, value)
	}
	if hasVariant {
		v, err := strconv.ParseUint(variant, 10, 8)
		if err != nil {
			return Type{}, fmt.Errorf("%w: %q", ErrUnknownRoadType, value)
		}
		t.Variant = uint8(v)
	}
	return t, nil
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Category.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoadType, t)
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
