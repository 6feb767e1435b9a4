package query

// Window is the history of recent queries the optimizer scores plans against.
// A limit of 0 keeps every query.
type Window struct {
	limit   int
	queries []Query
}

func NewWindow(limit int) *Window {
	return &Window{limit: limit}
}

// Add appends q, evicting the oldest query once the window is full.
func (w *Window) Add(q Query) {
	w.queries = append(w.queries, q)
	if w.limit > 0 && len(w.queries) > w.limit {
		w.queries = append(w.queries[:0], w.queries[len(w.queries)-w.limit:]...)
	}
}

func (w *Window) Queries() []Query {
	return w.queries
}

func (w *Window) Len() int {
	return len(w.queries)
}
