package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"campus-care-api/internal/auth"
	"campus-care-api/internal/feed"
	"campus-care-api/internal/identity"
	"campus-care-api/internal/metrics"
	"campus-care-api/internal/model"
	"campus-care-api/internal/notify"
	"campus-care-api/internal/security"
	"campus-care-api/internal/stream"
)

type fakeStore struct {
	mu            sync.Mutex
	profiles      map[string]model.Profile
	notifications []model.Notification
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

func (f *fakeStore) EnsureProfile(_ context.Context, p *model.Profile) (*model.Profile, error) {
	return p, nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string, _ int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Notification
	for _, n := range f.notifications {
		if n.TargetUserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id && f.notifications[i].TargetUserID == userID {
			f.notifications[i].Read = true
			return nil
		}
	}
	return model.NotFound("notification")
}

func (f *fakeStore) DeleteNotification(context.Context, string, string) error { return nil }

func (f *fakeStore) AppendEvent(context.Context, model.OutboxEvent) error { return nil }

type fixture struct {
	store  *fakeStore
	issuer *auth.Issuer
	inbox  *notify.Inbox
	reg    *prometheus.Registry
	url    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := &fakeStore{
		profiles: map[string]model.Profile{
			"amy": {ID: "amy", Role: model.RoleRequester, DisplayName: "Amy Lee"},
			"ben": {ID: "ben", Role: model.RoleRequester, DisplayName: "Ben Ho"},
		},
		notifications: []model.Notification{
			{ID: "n1", TargetUserID: "amy", Type: model.NotifyAppointmentDecided, Title: "Appointment approved"},
		},
	}
	issuer := auth.NewIssuer("ws-test-secret-0123456789abcdef", time.Minute)
	resolver := identity.NewResolver(st, issuer, model.RoleRequester, log)
	inbox := notify.NewInbox(st, feed.NewMemoryBus(), security.NewSanitizer(), log)

	reg := prometheus.NewRegistry()
	gw := NewGateway(resolver, Feeds{Inbox: inbox}, true, metrics.NewCollector(reg), log)
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return &fixture{store: st, issuer: issuer, inbox: inbox, reg: reg, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

// liveFeeds reads the open-feed gauge for one feed kind.
func (f *fixture) liveFeeds(t *testing.T, feed string) float64 {
	t.Helper()
	mfs, err := f.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "care_live_subscriptions" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "feed" && l.GetValue() == feed {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func (f *fixture) token(t *testing.T, id string) string {
	t.Helper()
	tok, err := f.issuer.MakeToken(model.Account{ID: id, Email: id + "@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, a clientAction) {
	t.Helper()
	if err := conn.WriteJSON(a); err != nil {
		t.Fatalf("write: %v", err)
	}
}

type received struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Feed    string          `json:"feed"`
	Status  string          `json:"status"`
	Profile json.RawMessage `json:"profile"`
	Data    json.RawMessage `json:"data"`
	Error   *frameError     `json:"error"`
}

// await reads frames until match accepts one.
func await(t *testing.T, conn *websocket.Conn, what string, match func(received) bool) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f received
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(f) {
			return f
		}
	}
}

func isSession(status string) func(received) bool {
	return func(f received) bool { return f.Type == "session" && f.Status == status }
}

func isError(kind string) func(received) bool {
	return func(f received) bool { return f.Type == "error" && f.Error != nil && f.Error.Kind == kind }
}

type notificationData struct {
	Notifications []struct {
		ID   string `json:"id"`
		Read bool   `json:"read"`
	} `json:"notifications"`
}

func TestSubscribeRequiresSignIn(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.url)
	await(t, conn, "initial session", isSession("signed_out"))

	send(t, conn, clientAction{Action: "subscribe", ID: "s1", Feed: "notifications"})
	await(t, conn, "unauthenticated error", isError("unauthenticated"))

	send(t, conn, clientAction{Action: "auth", Token: "garbage"})
	await(t, conn, "bad token error", isError("unauthenticated"))
}

func TestNotificationsFeedFollowsChanges(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.url)
	await(t, conn, "initial session", isSession("signed_out"))

	send(t, conn, clientAction{Action: "auth", Token: f.token(t, "amy")})
	signedIn := await(t, conn, "signed in", isSession("signed_in"))
	if !strings.Contains(string(signedIn.Profile), `"Amy Lee"`) {
		t.Errorf("profile = %s", signedIn.Profile)
	}

	send(t, conn, clientAction{Action: "subscribe", ID: "inbox", Feed: "notifications"})
	first := await(t, conn, "first snapshot", func(r received) bool { return r.Type == "data" && r.ID == "inbox" })
	var data notificationData
	json.Unmarshal(first.Data, &data)
	if len(data.Notifications) != 1 || data.Notifications[0].Read {
		t.Fatalf("first snapshot: %s", first.Data)
	}

	if err := f.inbox.MarkRead(context.Background(), model.Profile{ID: "amy"}, "n1"); err != nil {
		t.Fatal(err)
	}
	second := await(t, conn, "second snapshot", func(r received) bool { return r.Type == "data" && r.ID == "inbox" })
	data = notificationData{}
	json.Unmarshal(second.Data, &data)
	if len(data.Notifications) != 1 || !data.Notifications[0].Read {
		t.Fatalf("second snapshot: %s", second.Data)
	}

	send(t, conn, clientAction{Action: "subscribe", ID: "inbox", Feed: "notifications"})
	await(t, conn, "duplicate id", isError("validation"))
}

func TestSignOutClosesFeeds(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.url)
	send(t, conn, clientAction{Action: "auth", Token: f.token(t, "amy")})
	await(t, conn, "signed in", isSession("signed_in"))
	send(t, conn, clientAction{Action: "subscribe", ID: "inbox", Feed: "notifications"})
	await(t, conn, "snapshot", func(r received) bool { return r.Type == "data" })

	send(t, conn, clientAction{Action: "signout"})
	await(t, conn, "feed closed", func(r received) bool { return r.Type == "closed" && r.ID == "inbox" })

	send(t, conn, clientAction{Action: "subscribe", ID: "again", Feed: "notifications"})
	await(t, conn, "signed out subscribe", isError("unauthenticated"))
}

func TestSwitchingAccountsClosesPreviousFeeds(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.url)
	send(t, conn, clientAction{Action: "auth", Token: f.token(t, "amy")})
	await(t, conn, "amy signed in", isSession("signed_in"))
	send(t, conn, clientAction{Action: "subscribe", ID: "inbox", Feed: "notifications"})
	await(t, conn, "snapshot", func(r received) bool { return r.Type == "data" })

	send(t, conn, clientAction{Action: "auth", Token: f.token(t, "ben")})
	await(t, conn, "amy's feed closed", func(r received) bool { return r.Type == "closed" && r.ID == "inbox" })

	// the id is free again once the old feed is gone
	send(t, conn, clientAction{Action: "subscribe", ID: "inbox", Feed: "notifications"})
	fresh := await(t, conn, "ben's snapshot", func(r received) bool { return r.Type == "data" && r.ID == "inbox" })
	var data notificationData
	json.Unmarshal(fresh.Data, &data)
	if len(data.Notifications) != 0 {
		t.Errorf("ben sees amy's notifications: %s", fresh.Data)
	}
}

func TestUnsubscribeAndUnknownActions(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.url)
	send(t, conn, clientAction{Action: "auth", Token: f.token(t, "amy")})
	await(t, conn, "signed in", isSession("signed_in"))

	send(t, conn, clientAction{Action: "unsubscribe", ID: "missing"})
	await(t, conn, "missing subscription", isError("not_found"))

	send(t, conn, clientAction{Action: "subscribe", ID: "x", Feed: "weather"})
	await(t, conn, "unknown feed", isError("validation"))

	send(t, conn, clientAction{Action: "dance"})
	await(t, conn, "unknown action", isError("validation"))

	send(t, conn, clientAction{Action: "subscribe", ID: "inbox", Feed: "notifications"})
	await(t, conn, "snapshot", func(r received) bool { return r.Type == "data" })
	send(t, conn, clientAction{Action: "unsubscribe", ID: "inbox"})
	await(t, conn, "closed", func(r received) bool { return r.Type == "closed" && r.ID == "inbox" })
}

func TestFeedCountedOncePerSubscription(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.url)
	send(t, conn, clientAction{Action: "auth", Token: f.token(t, "amy")})
	await(t, conn, "signed in", isSession("signed_in"))

	send(t, conn, clientAction{Action: "subscribe", ID: "inbox", Feed: "notifications"})
	await(t, conn, "snapshot", func(r received) bool { return r.Type == "data" })
	if n := f.liveFeeds(t, "notifications"); n != 1 {
		t.Fatalf("open feeds = %v, want 1", n)
	}

	send(t, conn, clientAction{Action: "unsubscribe", ID: "inbox"})
	await(t, conn, "closed", func(r received) bool { return r.Type == "closed" && r.ID == "inbox" })
	deadline := time.Now().Add(2 * time.Second)
	for f.liveFeeds(t, "notifications") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("open feeds = %v after unsubscribe", f.liveFeeds(t, "notifications"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNoDataFrameAfterUnsubscribe(t *testing.T) {
	c := &client{
		gw:      &Gateway{log: slog.New(slog.NewTextHandler(io.Discard, nil))},
		send:    make(chan []byte, sendBuffer),
		session: identity.NewSession(nil),
		subs:    make(map[string]*feedHandle),
	}
	sub := stream.Start(context.Background(), func(ctx context.Context, emit stream.Emit[int]) error {
		for i := 0; ; i++ {
			if !emit(i) {
				return nil
			}
		}
	})

	// hold the relay right after it has taken the first value
	taken, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	forward(c, "counter", "numbers", sub, func(v int) any {
		once.Do(func() {
			close(taken)
			<-release
		})
		return v
	})
	<-taken
	c.unsubscribe("counter")
	close(release)
	c.workers.Wait()
	close(c.send)

	var frames []received
	for b := range c.send {
		var r received
		if err := json.Unmarshal(b, &r); err != nil {
			t.Fatal(err)
		}
		frames = append(frames, r)
	}
	for _, r := range frames {
		if r.Type == "data" {
			t.Errorf("data frame after unsubscribe: %s", r.Data)
		}
	}
	if len(frames) == 0 || frames[len(frames)-1].Type != "closed" {
		t.Errorf("frames = %+v, want a final closed frame", frames)
	}
	if c.session.Tracked() != 0 {
		t.Errorf("feed still tracked on the session")
	}
}
