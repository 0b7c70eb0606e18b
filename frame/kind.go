package frame

import (
	"fmt"
	"reflect"
)

// Kind is the canonical type of a column value.
type Kind uint8

const (
	Invalid   Kind = iota
	Float          // float64
	Int            // int64
	Bool           // bool
	Floats         // []float64
	Ints           // []int64
	Bools          // []bool
	FloatsVec      // [][]float64, one variation vector per object
)

var kindNames = [...]string{
	Invalid:   "invalid",
	Float:     "float",
	Int:       "int",
	Bool:      "bool",
	Floats:    "floats",
	Ints:      "ints",
	Bools:     "bools",
	FloatsVec: "floatsvec",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsArray reports whether values of this kind hold one entry per object.
func (k Kind) IsArray() bool {
	return k == Floats || k == Ints || k == Bools || k == FloatsVec
}

// IsNumeric reports whether values can be used as histogram values or weights.
func (k Kind) IsNumeric() bool {
	switch k {
	case Float, Int, Bool, Floats, Ints, Bools:
		return true
	}
	return false
}

// Elem returns the scalar kind of an array kind.
func (k Kind) Elem() Kind {
	switch k {
	case Floats:
		return Float
	case Ints:
		return Int
	case Bools:
		return Bool
	case FloatsVec:
		return Floats
	}
	return k
}

// zero returns a representative value used to type check expressions.
func (k Kind) zero() any {
	switch k {
	case Float:
		return float64(0)
	case Int:
		return int64(0)
	case Bool:
		return false
	case Floats:
		return []float64{}
	case Ints:
		return []int64{}
	case Bools:
		return []bool{}
	case FloatsVec:
		return [][]float64{}
	}
	return nil
}

// Column describes one named column.
type Column struct {
	Name string
	Kind Kind
}

// KindOf returns the kind of a canonical value.
func KindOf(v any) Kind {
	switch v.(type) {
	case float64:
		return Float
	case int64:
		return Int
	case bool:
		return Bool
	case []float64:
		return Floats
	case []int64:
		return Ints
	case []bool:
		return Bools
	case [][]float64:
		return FloatsVec
	}
	return Invalid
}

// KindOfType returns the kind a value of type t converts to, Invalid when
// it has no canonical form.
func KindOfType(t reflect.Type) Kind { return kindOfType(t) }

func kindOfType(t reflect.Type) Kind {
	if t == nil {
		return Invalid
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int
	case reflect.Bool:
		return Bool
	case reflect.Slice, reflect.Array:
		switch kindOfType(t.Elem()) {
		case Float:
			return Floats
		case Int:
			return Ints
		case Bool:
			return Bools
		case Floats:
			return FloatsVec
		}
	}
	return Invalid
}

// Convert coerces v into the canonical representation of kind k: float64,
// int64, bool, or slices of them. Readers use it to normalize file values.
func Convert(v any, k Kind) (any, error) { return convert(v, k) }

func convert(v any, k Kind) (any, error) {
	switch k {
	case Float:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case Int:
		if i, ok := toInt(v); ok {
			return i, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Floats:
		switch vv := v.(type) {
		case []float64:
			return vv, nil
		case []float32:
			out := make([]float64, len(vv))
			for i, x := range vv {
				out[i] = float64(x)
			}
			return out, nil
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
			out := make([]float64, rv.Len())
			for i := range out {
				f, ok := toFloat(rv.Index(i).Interface())
				if !ok {
					return nil, fmt.Errorf("%w: element %d of %T is not a float", ErrKindMismatch, i, v)
				}
				out[i] = f
			}
			return out, nil
		}
	case Ints:
		if vv, ok := v.([]int64); ok {
			return vv, nil
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
			out := make([]int64, rv.Len())
			for i := range out {
				n, ok := toInt(rv.Index(i).Interface())
				if !ok {
					return nil, fmt.Errorf("%w: element %d of %T is not an int", ErrKindMismatch, i, v)
				}
				out[i] = n
			}
			return out, nil
		}
	case Bools:
		if vv, ok := v.([]bool); ok {
			return vv, nil
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
			out := make([]bool, rv.Len())
			for i := range out {
				b, ok := rv.Index(i).Interface().(bool)
				if !ok {
					return nil, fmt.Errorf("%w: element %d of %T is not a bool", ErrKindMismatch, i, v)
				}
				out[i] = b
			}
			return out, nil
		}
	case FloatsVec:
		if vv, ok := v.([][]float64); ok {
			return vv, nil
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
			out := make([][]float64, rv.Len())
			for i := range out {
				inner, err := convert(rv.Index(i).Interface(), Floats)
				if err != nil {
					return nil, err
				}
				out[i] = inner.([]float64)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot use %T as %v", ErrKindMismatch, v, k)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
