package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"campus-care-api/internal/feed"
	"campus-care-api/internal/model"
	"campus-care-api/internal/presence"
	"campus-care-api/internal/security"
)

type fakeStore struct {
	mu            sync.Mutex
	profiles      map[string]model.Profile
	appts         map[string]model.Appointment
	channels      map[string]model.Channel
	notifications []model.Notification
	keys          map[string]bool
	events        []model.OutboxEvent
	dispatched    map[int64]bool
	discarded     map[int64]bool
	failed        map[int64]int
	retryAt       map[int64]time.Time
	clock         time.Time
	insertErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: map[string]model.Profile{
			"a1": {ID: "a1", Role: model.RoleRequester, DisplayName: "Amy Lee"},
			"d1": {ID: "d1", Role: model.RoleProvider, DisplayName: "Dana Cole"},
			"t1": {ID: "t1", Role: model.RoleTransportAssistant, DisplayName: "Tom"},
			"t2": {ID: "t2", Role: model.RoleTransportAssistant, DisplayName: "Tia"},
		},
		appts:      map[string]model.Appointment{},
		channels:   map[string]model.Channel{"c1": {ID: "c1", RequesterID: "a1", ProviderID: "d1"}},
		keys:       map[string]bool{},
		dispatched: map[int64]bool{},
		discarded:  map[int64]bool{},
		failed:     map[int64]int{},
		retryAt:    map[int64]time.Time{},
		clock:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) ProfileByID(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, model.NotFound("profile")
	}
	return &p, nil
}

func (f *fakeStore) ProfilesByRole(_ context.Context, role model.Role) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Profile
	for _, p := range f.profiles {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) AppointmentByID(_ context.Context, id string) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, model.NotFound("appointment")
	}
	return &a, nil
}

func (f *fakeStore) ChannelByID(_ context.Context, id string) (*model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[id]
	if !ok {
		return nil, model.NotFound("channel")
	}
	return &c, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, n *model.Notification, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	n.CreatedAt = time.Now()
	f.notifications = append(f.notifications, *n)
	return true, nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Notification
	for i := len(f.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if f.notifications[i].TargetUserID == userID {
			out = append(out, f.notifications[i])
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notifications {
		if n.ID == id && n.TargetUserID == userID {
			f.notifications[i].Read = true
			return nil
		}
	}
	return model.NotFound("notification")
}

func (f *fakeStore) DeleteNotification(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notifications {
		if n.ID == id && n.TargetUserID == userID {
			f.notifications = slices.Delete(f.notifications, i, i+1)
			return nil
		}
	}
	return model.NotFound("notification")
}

func (f *fakeStore) AppendEvent(_ context.Context, ev model.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.ID = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStore) PendingEvents(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OutboxEvent
	for _, ev := range f.events {
		if f.dispatched[ev.ID] || f.clock.Before(f.retryAt[ev.ID]) || len(out) >= limit {
			continue
		}
		ev.Attempts = f.failed[ev.ID]
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeStore) MarkDispatched(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched[id] = true
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id int64, _ string, retryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id]++
	f.retryAt[id] = retryAt
	return nil
}

func (f *fakeStore) MarkDiscarded(_ context.Context, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id]++
	f.dispatched[id] = true
	f.discarded[id] = true
	return nil
}

func (f *fakeStore) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

func (f *fakeStore) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(d)
}

func (f *fakeStore) notificationsFor(userID string) []model.Notification {
	list, _ := f.ListNotifications(context.Background(), userID, 1000)
	return list
}

type fixture struct {
	store    *fakeStore
	presence *presence.Memory
	bus      *feed.MemoryBus
	fanout   *Fanout
	inbox    *Inbox
	disp     *Dispatcher
}

func newFixture() *fixture {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newFakeStore()
	pr := presence.NewMemory()
	bus := feed.NewMemoryBus()
	fo := NewFanout(st, pr, bus, nil, log)
	disp := NewDispatcher(st, fo, time.Second, 50, nil, log)
	disp.now = st.now
	return &fixture{
		store:    st,
		presence: pr,
		bus:      bus,
		fanout:   fo,
		inbox:    NewInbox(st, bus, security.NewSanitizer(), log),
		disp:     disp,
	}
}

func TestFeverCheckScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.store.appts["ap1"] = model.Appointment{
		ID: "ap1", RequesterID: "a1", RequesterName: "Amy Lee", ProviderID: "d1", ProviderName: "Dana Cole",
		Title: "Fever check", Status: model.StatusPending, ScheduledAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	f.store.AppendEvent(ctx, model.OutboxEvent{Kind: model.EventAppointmentCreated, RefID: "ap1", ActorID: "a1"})

	if _, err := f.disp.RunOnce(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := f.store.notificationsFor("d1"); len(got) != 1 || got[0].Type != model.NotifyNewAppointment {
		t.Fatalf("provider notifications = %+v", got)
	}

	a := f.store.appts["ap1"]
	a.Status = model.StatusApproved
	f.store.appts["ap1"] = a
	f.store.AppendEvent(ctx, model.OutboxEvent{Kind: model.EventAppointmentDecided, RefID: "ap1", ActorID: "d1",
		Payload: map[string]string{"status": "approved"}})
	f.disp.RunOnce(ctx)

	got := f.store.notificationsFor("a1")
	if len(got) != 1 || got[0].Type != model.NotifyAppointmentDecided || got[0].Payload["status"] != "approved" {
		t.Fatalf("requester notifications = %+v", got)
	}
	if got[0].Read {
		t.Error("notification should start unread")
	}
}

func TestRedeliveredEventNotifiesOnce(t *testing.T) {
	f := newFixture()
	ev := model.OutboxEvent{ID: 7, Kind: model.EventMessageAppended, RefID: "c1", ActorID: "a1",
		Payload: map[string]string{"sender_name": "Amy Lee", "preview": "hi"}}

	for i := 0; i < 3; i++ {
		if err := f.fanout.Handle(context.Background(), ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if got := f.store.notificationsFor("d1"); len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
}

func TestMessageToViewerSuppressed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.presence.Enter(ctx, "c1", "d1")

	ev := model.OutboxEvent{ID: 1, Kind: model.EventMessageAppended, RefID: "c1", ActorID: "a1"}
	if err := f.fanout.Handle(ctx, ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := f.store.notificationsFor("d1"); len(got) != 0 {
		t.Fatalf("viewer was notified: %+v", got)
	}

	f.presence.Leave(ctx, "c1", "d1")
	ev.ID = 2
	f.fanout.Handle(ctx, ev)
	if got := f.store.notificationsFor("d1"); len(got) != 1 || got[0].RefID != "c1" {
		t.Fatalf("absent recipient not notified: %+v", got)
	}
}

func TestEmergencyReachesEveryTransportAssistant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.inbox.RaiseEmergency(ctx, f.profile("a1"), "chest pain", "Dorm B"); err != nil {
		t.Fatalf("raise: %v", err)
	}
	f.disp.RunOnce(ctx)

	for _, ta := range []string{"t1", "t2"} {
		got := f.store.notificationsFor(ta)
		if len(got) != 1 || got[0].Type != model.NotifyEmergency || got[0].Payload["location"] != "Dorm B" {
			t.Errorf("%s notifications = %+v", ta, got)
		}
	}
	if got := f.store.notificationsFor("d1"); len(got) != 0 {
		t.Errorf("provider got emergency: %+v", got)
	}
}

func TestRaiseEmergencyRequiresRequester(t *testing.T) {
	f := newFixture()
	if err := f.inbox.RaiseEmergency(context.Background(), f.profile("d1"), "x", ""); !model.IsKind(err, model.KindForbidden) {
		t.Fatalf("err = %v", err)
	}
}

func TestDispatcherRetriesFailures(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.appts["ap1"] = model.Appointment{ID: "ap1", RequesterID: "a1", ProviderID: "d1", Status: model.StatusPending}
	f.store.AppendEvent(ctx, model.OutboxEvent{Kind: model.EventAppointmentCreated, RefID: "ap1"})

	f.store.insertErr = model.Transient("insert notification", errors.New("down"))
	f.disp.RunOnce(ctx)
	if f.store.dispatched[1] || f.store.failed[1] != 1 {
		t.Fatalf("failed event: dispatched=%v failed=%d", f.store.dispatched[1], f.store.failed[1])
	}

	// not due again until the backoff has passed
	f.store.insertErr = nil
	if n, _ := f.disp.RunOnce(ctx); n != 0 {
		t.Fatalf("event retried before its backoff: picked up %d", n)
	}

	f.store.advance(time.Second)
	f.disp.RunOnce(ctx)
	if !f.store.dispatched[1] {
		t.Fatal("event not dispatched after recovery")
	}
	if got := f.store.notificationsFor("d1"); len(got) != 1 {
		t.Fatalf("notifications = %d", len(got))
	}
}

func TestDispatcherKeepsRetryingLongOutage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.appts["ap1"] = model.Appointment{ID: "ap1", RequesterID: "a1", ProviderID: "d1", Status: model.StatusPending}
	f.store.AppendEvent(ctx, model.OutboxEvent{Kind: model.EventAppointmentCreated, RefID: "ap1"})

	f.store.insertErr = model.Transient("insert notification", errors.New("down"))
	for i := 0; i < 25; i++ {
		f.disp.RunOnce(ctx)
		f.store.advance(maxBackoff)
	}
	if f.store.failed[1] != 25 || f.store.dispatched[1] {
		t.Fatalf("after outage: failed=%d dispatched=%v", f.store.failed[1], f.store.dispatched[1])
	}

	f.store.insertErr = nil
	f.disp.RunOnce(ctx)
	if !f.store.dispatched[1] || f.store.discarded[1] {
		t.Fatalf("event not delivered after outage: dispatched=%v discarded=%v", f.store.dispatched[1], f.store.discarded[1])
	}
	if got := f.store.notificationsFor("d1"); len(got) != 1 {
		t.Fatalf("notifications = %d", len(got))
	}
}

func TestDispatcherDiscardsUndeliverableEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AppendEvent(ctx, model.OutboxEvent{Kind: model.EventAppointmentCreated, RefID: "missing"})

	f.disp.RunOnce(ctx)
	if !f.store.discarded[1] {
		t.Fatal("event with a missing appointment was not discarded")
	}
	f.store.advance(maxBackoff)
	if n, _ := f.disp.RunOnce(ctx); n != 0 {
		t.Fatalf("discarded event picked up again: %d", n)
	}
}

func TestDispatcherBackoff(t *testing.T) {
	d := &Dispatcher{interval: 2 * time.Second}
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{9, 5 * time.Minute},
		{100, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := d.backoff(tt.attempts); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestDispatcherRunStopsWithContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.disp.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestInboxWatchMarkReadDismiss(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fanout.Handle(ctx, model.OutboxEvent{ID: 1, Kind: model.EventMessageAppended, RefID: "c1", ActorID: "a1"})
	f.fanout.Handle(ctx, model.OutboxEvent{ID: 2, Kind: model.EventMessageAppended, RefID: "c1", ActorID: "a1"})

	sub, err := f.inbox.Watch(ctx, f.profile("d1"))
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer sub.Cancel()

	list := <-sub.C()
	if len(list) != 2 {
		t.Fatalf("initial = %d", len(list))
	}
	newest := list[0]

	if err := f.inbox.MarkRead(ctx, f.profile("d1"), newest.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if list := <-sub.C(); !list[0].Read {
		t.Error("read flag not reflected")
	}

	if err := f.inbox.Dismiss(ctx, f.profile("a1"), newest.ID); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("dismiss by non-owner err = %v", err)
	}
	if err := f.inbox.Dismiss(ctx, f.profile("d1"), newest.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if list := <-sub.C(); len(list) != 1 {
		t.Errorf("after dismiss = %d", len(list))
	}
}

func (f *fixture) profile(id string) model.Profile {
	p, _ := f.store.ProfileByID(context.Background(), id)
	return *p
}
