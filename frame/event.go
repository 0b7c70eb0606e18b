package frame

const (
	stValue uint8 = 1 << iota
	stPassKnown
	stPass
)

// event caches derived values and filter decisions while one entry is
// being processed.
type event struct {
	entry int64
	row   []any
	vals  []any
	state []uint8
}

func newEvent(nodes int) *event {
	return &event{vals: make([]any, nodes), state: make([]uint8, nodes)}
}

func (ev *event) reset(entry int64, row []any) {
	ev.entry = entry
	ev.row = row
	clear(ev.vals)
	clear(ev.state)
}

func (ev *event) get(ref *colRef) (any, error) {
	if ref.def == nil {
		return ev.row[ref.src], nil
	}
	return ref.def.value(ev)
}

func (n *Node) inputs(ev *event) (Args, error) {
	a := make(Args, len(n.args))
	for i, ref := range n.args {
		v, err := ev.get(ref)
		if err != nil {
			return nil, err
		}
		a[i] = v
	}
	return a, nil
}

func (n *Node) eval(ev *event) (any, error) {
	a, err := n.inputs(ev)
	if err != nil {
		return nil, err
	}
	v, err := n.code.eval(a)
	if err != nil {
		return nil, &EvalError{Node: n.label, Expr: n.expr.String(), Entry: ev.entry, Err: err}
	}
	return v, nil
}

// value returns the column defined by n for the current event.
func (n *Node) value(ev *event) (any, error) {
	if ev.state[n.id]&stValue != 0 {
		return ev.vals[n.id], nil
	}
	v, err := n.eval(ev)
	if err != nil {
		return nil, err
	}
	ev.vals[n.id] = v
	ev.state[n.id] |= stValue
	return v, nil
}

// pass reports whether the current event survives every filter up to n.
func (n *Node) pass(ev *event) (bool, error) {
	st := ev.state[n.id]
	if st&stPassKnown != 0 {
		return st&stPass != 0, nil
	}

	ok := true
	if n.parent != nil {
		var err error
		if ok, err = n.parent.pass(ev); err != nil {
			return false, err
		}
	}
	if ok && n.op == opFilter {
		v, err := n.eval(ev)
		if err != nil {
			return false, err
		}
		ok = v.(bool)
	}

	ev.state[n.id] |= stPassKnown
	if ok {
		ev.state[n.id] |= stPass
	}
	return ok, nil
}
