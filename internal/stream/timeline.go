package stream

import (
	"slices"

	"campus-care-api/internal/model"
)

// Timeline materializes a channel's messages in server order no matter
// the order they arrive in. Duplicates are ignored.
type Timeline struct {
	msgs []model.Message
	seen map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[string]struct{})}
}

// Insert reports whether m was new.
func (t *Timeline) Insert(m model.Message) bool {
	if _, ok := t.seen[m.ID]; ok {
		return false
	}
	t.seen[m.ID] = struct{}{}
	i, _ := slices.BinarySearchFunc(t.msgs, m, func(a, b model.Message) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	t.msgs = slices.Insert(t.msgs, i, m)
	return true
}

func (t *Timeline) Len() int { return len(t.msgs) }

// Last returns the newest message, if any.
func (t *Timeline) Last() (model.Message, bool) {
	if len(t.msgs) == 0 {
		return model.Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

func (t *Timeline) Messages() []model.Message {
	return slices.Clone(t.msgs)
}
