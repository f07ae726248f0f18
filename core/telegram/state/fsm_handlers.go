package state

// Table binds conversation states to handlers of type H. States that were
// never registered resolve to StateIdle.
type Table[H any] struct {
	handlers map[State]H
}

// NewTable returns an empty state table.
func NewTable[H any]() *Table[H] {
	return &Table[H]{handlers: make(map[State]H)}
}

// Register associates a state with its handler.
func (t *Table[H]) Register(st State, h H) {
	t.handlers[st] = h
}

// Resolve maps unknown and empty states to StateIdle.
func (t *Table[H]) Resolve(st State) State {
	if _, ok := t.handlers[st]; ok {
		return st
	}
	return StateIdle
}

// Lookup returns the handler for the resolved state.
func (t *Table[H]) Lookup(st State) (H, bool) {
	h, ok := t.handlers[t.Resolve(st)]
	return h, ok
}
