package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSnapshotReloadsOnEvent(t *testing.T) {
	bus := NewMemoryBus()
	var loads atomic.Int64

	sub, err := Snapshot(context.Background(), bus, []string{UserTopic("u1")}, KindAppointment, func(ctx context.Context) (int64, error) {
		return loads.Add(1), nil
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer sub.Cancel()

	if v := <-sub.C(); v != 1 {
		t.Fatalf("first snapshot = %d", v)
	}

	bus.Publish(context.Background(), UserTopic("u2"), Event{Kind: KindAppointment})
	bus.Publish(context.Background(), UserTopic("u1"), Event{Kind: KindAppointment})

	select {
	case v := <-sub.C():
		if v != 2 {
			t.Errorf("second snapshot = %d, want 2", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after event")
	}
}

func TestSnapshotCancelClosesListener(t *testing.T) {
	bus := NewMemoryBus()
	sub, _ := Snapshot(context.Background(), bus, []string{UserTopic("u1")}, KindAppointment, func(ctx context.Context) (string, error) {
		return "x", nil
	})
	<-sub.C()
	sub.Cancel()

	bus.mu.RLock()
	n := len(bus.subs)
	bus.mu.RUnlock()
	if n != 0 {
		t.Errorf("listener still registered after cancel: %d topics", n)
	}
}

func TestSnapshotIgnoresOtherKinds(t *testing.T) {
	bus := NewMemoryBus()
	var loads atomic.Int64

	sub, _ := Snapshot(context.Background(), bus, []string{UserTopic("u1")}, KindChannel, func(ctx context.Context) (int64, error) {
		return loads.Add(1), nil
	})
	defer sub.Cancel()
	<-sub.C()

	for _, kind := range []string{KindAppointment, KindNotification, KindMessage} {
		bus.Publish(context.Background(), UserTopic("u1"), Event{Kind: kind})
	}
	select {
	case v := <-sub.C():
		t.Fatalf("reloaded on unrelated event: %d", v)
	case <-time.After(100 * time.Millisecond):
	}

	bus.Publish(context.Background(), UserTopic("u1"), Event{Kind: KindChannel})
	select {
	case v := <-sub.C():
		if v != 2 {
			t.Errorf("snapshot = %d, want 2", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after channel event")
	}
}
