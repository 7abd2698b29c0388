// Package logwatch tracks how far the router's append-only log has been
// consumed and decides which new entries warrant an alert.
package logwatch

// Entry is one router log line. IDs are opaque; the router assigns them in
// append order.
type Entry struct {
	ID      string   `json:"id"`
	Time    string   `json:"time,omitempty"`
	Topics  []string `json:"topics,omitempty"`
	Message string   `json:"message"`
}

// Watermark is the ID of the last entry already evaluated. The zero value is
// unset.
type Watermark struct {
	id  string
	set bool
}

// At returns a watermark positioned on id.
func At(id string) Watermark {
	return Watermark{id: id, set: true}
}

func (w Watermark) ID() string  { return w.id }
func (w Watermark) IsSet() bool { return w.set }

func (w Watermark) String() string {
	if !w.set {
		return "<unset>"
	}
	return w.id
}

// NewEntriesSince returns the entries appended after wm and the watermark to
// use next cycle. The snapshot must be oldest-first.
//
// An unset watermark, or one whose entry is no longer in the snapshot, yields
// no entries and moves the watermark to the snapshot tail; the gap is never
// replayed. An empty snapshot leaves the watermark where it was.
func NewEntriesSince(snapshot []Entry, wm Watermark) ([]Entry, Watermark) {
	if len(snapshot) == 0 {
		return nil, wm
	}
	tail := At(snapshot[len(snapshot)-1].ID)

	if !wm.set {
		return nil, tail
	}

	for i := len(snapshot) - 1; i >= 0; i-- {
		if snapshot[i].ID == wm.id {
			fresh := snapshot[i+1:]
			if len(fresh) == 0 {
				return nil, wm
			}
			out := make([]Entry, len(fresh))
			copy(out, fresh)
			return out, tail
		}
	}

	return nil, tail
}
