// Package ws serves live feeds to browsers over WebSocket. Each connection
// owns one identity.Session; signing out or switching accounts ends every
// feed the connection opened.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campus-care-api/internal/appointment"
	"campus-care-api/internal/chat"
	"campus-care-api/internal/identity"
	"campus-care-api/internal/metrics"
	"campus-care-api/internal/model"
	"campus-care-api/internal/notify"
	"campus-care-api/internal/stream"
	"campus-care-api/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 256
)

// Feeds are the live sources a connection can subscribe to.
type Feeds struct {
	Directory *chat.Directory
	Stream    *chat.Stream
	Workflow  *appointment.Workflow
	Inbox     *notify.Inbox
}

type Gateway struct {
	resolver *identity.Resolver
	feeds    Feeds
	upgrader websocket.Upgrader
	metrics  *metrics.Collector
	log      *slog.Logger
}

// NewGateway checks the Origin header against the request host unless
// skipOrigin is set.
func NewGateway(r *identity.Resolver, feeds Feeds, skipOrigin bool, m *metrics.Collector, log *slog.Logger) *Gateway {
	g := &Gateway{
		resolver: r,
		feeds:    feeds,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		metrics:  m,
		log:      log,
	}
	if skipOrigin {
		g.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return g
}

// clientAction is a JSON message sent by the browser.
type clientAction struct {
	Action    string `json:"action"`
	ID        string `json:"id,omitempty"`
	Feed      string `json:"feed,omitempty"`
	Token     string `json:"token,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

type frame struct {
	Type    string        `json:"type"`
	ID      string        `json:"id,omitempty"`
	Feed    string        `json:"feed,omitempty"`
	Status  string        `json:"status,omitempty"`
	Profile *wire.Profile `json:"profile,omitempty"`
	Data    any           `json:"data,omitempty"`
	Error   *frameError   `json:"error,omitempty"`
}

type frameError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("ws: upgrade error", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		gw:      g,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		session: identity.NewSession(g.resolver),
		subs:    make(map[string]*feedHandle),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writePump()
	c.readPump()
}

type client struct {
	gw      *Gateway
	conn    *websocket.Conn
	send    chan []byte
	session *identity.Session

	mu   sync.Mutex
	subs map[string]*feedHandle

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// feedHandle is one open subscription. stopped is guarded by client.mu.
type feedHandle struct {
	cancel  func()
	stopped bool
}

// readPump handles client actions until the connection drops, then tears
// the session down.
func (c *client) readPump() {
	stopSession := c.session.Subscribe(c.sessionChanged)
	defer func() {
		stopSession()
		c.cancel()
		c.session.Clear()
		c.workers.Wait()
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.log.Info("ws: unexpected close", "error", err)
			}
			return
		}

		var a clientAction
		if err := json.Unmarshal(message, &a); err != nil {
			c.fail("", model.Validation("invalid message"))
			continue
		}

		switch a.Action {
		case "auth":
			if _, err := c.session.SetToken(c.ctx, a.Token); err != nil {
				c.fail(a.ID, err)
			}
		case "subscribe":
			c.subscribe(a)
		case "unsubscribe":
			c.unsubscribe(a.ID)
		case "signout":
			c.session.Clear()
		default:
			c.fail(a.ID, model.Validation("unknown action "+a.Action))
		}
	}
}

// writePump pumps queued frames to the connection and keeps it alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) subscribe(a clientAction) {
	st := c.session.State()
	if st.Status != identity.StatusSignedIn || st.Profile == nil {
		c.fail(a.ID, model.Unauthenticated("sign in first"))
		return
	}
	if a.ID == "" {
		c.fail("", model.Validation("subscription id is required"))
		return
	}
	c.mu.Lock()
	_, dup := c.subs[a.ID]
	c.mu.Unlock()
	if dup {
		c.fail(a.ID, model.Validation("subscription id already in use"))
		return
	}

	viewer := *st.Profile
	var err error
	switch a.Feed {
	case "messages":
		var sub *stream.Subscription[model.Message]
		if sub, err = c.gw.feeds.Stream.Subscribe(c.ctx, viewer, a.ChannelID); err == nil {
			forward(c, a.ID, a.Feed, sub, func(m model.Message) any { return wire.FromMessage(m) })
		}
	case "channels":
		var sub *stream.Subscription[[]model.Channel]
		if sub, err = c.gw.feeds.Directory.Watch(c.ctx, viewer); err == nil {
			forward(c, a.ID, a.Feed, sub, func(cs []model.Channel) any { return wire.FromChannels(cs) })
		}
	case "appointments":
		var sub *stream.Subscription[[]model.Appointment]
		if sub, err = c.gw.feeds.Workflow.Watch(c.ctx, viewer, a.Filter); err == nil {
			forward(c, a.ID, a.Feed, sub, func(as []model.Appointment) any { return wire.FromAppointments(as) })
		}
	case "notifications":
		var sub *stream.Subscription[[]model.Notification]
		if sub, err = c.gw.feeds.Inbox.Watch(c.ctx, viewer); err == nil {
			forward(c, a.ID, a.Feed, sub, func(ns []model.Notification) any { return wire.FromNotifications(ns) })
		}
	default:
		err = model.Validation("unknown feed " + a.Feed)
	}
	if err != nil {
		c.fail(a.ID, err)
	}
}

// forward relays a feed until it ends. The feed is tracked on the session
// so sign-out cancels it.
func forward[T any](c *client, id, feed string, sub *stream.Subscription[T], conv func(T) any) {
	h := &feedHandle{cancel: sub.Cancel}
	untrack := c.session.Track(func() { c.stop(h) })
	c.mu.Lock()
	c.subs[id] = h
	c.mu.Unlock()

	done := c.gw.metrics.SubscriptionOpened(feed)
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		defer done()
		defer untrack()

		for v := range sub.C() {
			f := frame{Type: "data", ID: id, Feed: feed, Data: conv(v)}
			c.mu.Lock()
			if !h.stopped {
				c.emit(f)
			}
			c.mu.Unlock()
		}
		if err := sub.Err(); err != nil {
			c.fail(id, err)
		}

		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		c.emit(frame{Type: "closed", ID: id, Feed: feed})
	}()
}

// stop cancels a feed. No data frame for it is queued after stop returns,
// even for a value the relay had already taken.
func (c *client) stop(h *feedHandle) {
	c.mu.Lock()
	h.stopped = true
	c.mu.Unlock()
	h.cancel()
}

func (c *client) unsubscribe(id string) {
	c.mu.Lock()
	h, ok := c.subs[id]
	c.mu.Unlock()
	if !ok {
		c.fail(id, model.NotFound("subscription"))
		return
	}
	c.stop(h)
}

func (c *client) sessionChanged(st identity.State) {
	f := frame{Type: "session", Status: statusName(st.Status)}
	if st.Profile != nil {
		p := wire.FromProfile(*st.Profile)
		f.Profile = &p
	}
	c.emit(f)
}

func (c *client) fail(id string, err error) {
	kind, msg := "internal", "internal error"
	var e *model.Error
	switch {
	case !errors.As(err, &e):
		c.gw.log.Error("ws: unexpected error", "subscription", id, "error", err)
	case e.Kind == model.KindTransient:
		c.gw.log.Error("ws: feed failed", "subscription", id, "error", err)
		kind, msg = string(e.Kind), "service unavailable, try again"
	default:
		kind, msg = string(e.Kind), e.Msg
	}
	c.emit(frame{Type: "error", ID: id, Error: &frameError{Kind: kind, Message: msg}})
}

// emit never blocks; a client that cannot keep up is disconnected.
func (c *client) emit(f frame) {
	b, err := json.Marshal(f)
	if err != nil {
		c.gw.log.Error("ws: encode frame", "error", err)
		return
	}
	select {
	case c.send <- b:
	default:
		c.gw.log.Warn("ws: send buffer full, dropping client")
		c.conn.Close()
	}
}

func statusName(s identity.Status) string {
	switch s {
	case identity.StatusLoading:
		return "loading"
	case identity.StatusSignedIn:
		return "signed_in"
	}
	return "signed_out"
}
