package frame

// Args holds the per-event values of an expression's input columns, in the
// order the inputs were declared. Accessors convert between compatible kinds.
type Args []any

func (a Args) Float(i int) float64 {
	f, _ := toFloat(a[i])
	return f
}

func (a Args) Int(i int) int64 {
	n, _ := toInt(a[i])
	return n
}

func (a Args) Bool(i int) bool {
	switch v := a[i].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

func (a Args) Floats(i int) []float64 {
	switch v := a[i].(type) {
	case []float64:
		return v
	case []int64:
		out := make([]float64, len(v))
		for j, x := range v {
			out[j] = float64(x)
		}
		return out
	case []bool:
		out := make([]float64, len(v))
		for j, x := range v {
			if x {
				out[j] = 1
			}
		}
		return out
	}
	return nil
}

func (a Args) Ints(i int) []int64 {
	switch v := a[i].(type) {
	case []int64:
		return v
	case []bool:
		out := make([]int64, len(v))
		for j, x := range v {
			if x {
				out[j] = 1
			}
		}
		return out
	case []float64:
		out := make([]int64, len(v))
		for j, x := range v {
			out[j] = int64(x)
		}
		return out
	}
	return nil
}

func (a Args) Bools(i int) []bool {
	switch v := a[i].(type) {
	case []bool:
		return v
	case []int64:
		out := make([]bool, len(v))
		for j, x := range v {
			out[j] = x > 0
		}
		return out
	}
	return nil
}

func (a Args) FloatsVec(i int) [][]float64 {
	v, _ := a[i].([][]float64)
	return v
}

// Len returns the number of objects of an array argument.
func (a Args) Len(i int) int {
	switch v := a[i].(type) {
	case []float64:
		return len(v)
	case []int64:
		return len(v)
	case []bool:
		return len(v)
	case [][]float64:
		return len(v)
	}
	return 0
}
