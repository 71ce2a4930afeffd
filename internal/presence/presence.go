// Package presence tracks which users are currently viewing which channel.
// Counts are per (channel, user) so several open views of the same
// channel keep the user present until the last one leaves.
package presence

import (
	"context"
	"sync"
)

type Tracker interface {
	Enter(ctx context.Context, channelID, userID string) error
	// Touch refreshes a live view so it does not expire.
	Touch(ctx context.Context, channelID, userID string) error
	Leave(ctx context.Context, channelID, userID string) error
	Viewing(ctx context.Context, channelID, userID string) (bool, error)
}

type key struct{ channel, user string }

type Memory struct {
	mu     sync.Mutex
	counts map[key]int
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[key]int)}
}

func (m *Memory) Enter(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	m.counts[key{channelID, userID}]++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Touch(context.Context, string, string) error { return nil }

func (m *Memory) Leave(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{channelID, userID}
	if m.counts[k] <= 1 {
		delete(m.counts, k)
		return nil
	}
	m.counts[k]--
	return nil
}

func (m *Memory) Viewing(_ context.Context, channelID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key{channelID, userID}] > 0, nil
}
