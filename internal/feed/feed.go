// Package feed carries change signals from writers to live subscribers.
// Events are signals: listeners re-read the store when one arrives, so a
// listener that falls behind may see fewer events but never misses a change.
package feed

import (
	"context"
	"encoding/json"
	"sync"
)

const (
	KindMessage      = "message"
	KindChannel      = "channel"
	KindAppointment  = "appointment"
	KindNotification = "notification"
)

type Event struct {
	Kind  string          `json:"kind"`
	RefID string          `json:"ref_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ChannelTopic(channelID string) string { return "channel:" + channelID }

func UserTopic(userID string) string { return "user:" + userID }

type Bus interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topics ...string) (*Listener, error)
}

// Listener receives events for the topics it subscribed to until Close.
type Listener struct {
	C <-chan Event

	once    sync.Once
	closeFn func() error
	err     error
}

func (l *Listener) Close() error {
	l.once.Do(func() { l.err = l.closeFn() })
	return l.err
}

// Drain discards queued events. It reports false if the listener closed.
func (l *Listener) Drain() bool {
	for {
		select {
		case _, ok := <-l.C:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

const listenerBuffer = 64

// offer never blocks the publisher; a full buffer already holds a pending signal.
func offer(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}
