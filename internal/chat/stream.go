package chat

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"campus-care-api/internal/feed"
	"campus-care-api/internal/metrics"
	"campus-care-api/internal/model"
	"campus-care-api/internal/presence"
	"campus-care-api/internal/security"
	"campus-care-api/internal/stream"
)

const (
	MaxMessageLen = 4000
	previewLen    = 120
	pageSize      = 200
)

// Stream appends to and tails the per-channel message logs.
type Stream struct {
	store     Store
	bus       feed.Bus
	presence  presence.Tracker
	sanitizer *security.Sanitizer
	metrics   *metrics.Collector
	log       *slog.Logger

	Heartbeat time.Duration
}

func NewStream(st Store, bus feed.Bus, pr presence.Tracker, san *security.Sanitizer, m *metrics.Collector, log *slog.Logger) *Stream {
	return &Stream{
		store:     st,
		bus:       bus,
		presence:  pr,
		sanitizer: san,
		metrics:   m,
		log:       log,
		Heartbeat: 30 * time.Second,
	}
}

// Append stores a message from sender. Blank text is rejected before any
// storage is touched. A failed summary update is logged; the message
// still stands.
func (s *Stream) Append(ctx context.Context, sender model.Profile, channelID, text string) (model.Message, error) {
	clean := s.sanitizer.Text(text)
	if clean == "" {
		return model.Message{}, model.Validation("message text is empty")
	}
	if utf8.RuneCountInString(clean) > MaxMessageLen {
		return model.Message{}, model.Validation("message text is too long")
	}

	ch, err := s.store.ChannelByID(ctx, channelID)
	if err != nil {
		return model.Message{}, err
	}
	recipient, ok := ch.Counterpart(sender.ID)
	if !ok {
		return model.Message{}, model.Forbidden("not a participant of this channel")
	}

	// the sender's role in the channel is fixed by which side they are on
	role := model.RoleRequester
	if sender.ID == ch.ProviderID {
		role = model.RoleProvider
	}

	m := model.Message{
		ID:         uuid.NewString(),
		ChannelID:  ch.ID,
		SenderID:   sender.ID,
		SenderRole: role,
		Text:       clean,
	}
	ev := model.OutboxEvent{
		Kind:    model.EventMessageAppended,
		RefID:   ch.ID,
		ActorID: sender.ID,
		Payload: map[string]string{
			"recipient_id": recipient,
			"sender_name":  sender.DisplayName,
			"preview":      preview(clean),
		},
	}
	if err := s.store.AppendMessage(ctx, &m, ev); err != nil {
		s.log.Error("chat: append message failed", "channel_id", ch.ID, "error", err)
		return model.Message{}, err
	}
	s.metrics.MessageAppended()

	if err := s.store.UpdateChannelSummary(ctx, ch.ID, clean, m.SentAt); err != nil {
		s.log.Warn("chat: channel summary update failed", "channel_id", ch.ID, "message_id", m.ID, "error", err)
	} else {
		ch.LastMessage, ch.LastMessageAt = clean, m.SentAt
		publishChannel(ctx, s.bus, s.log, *ch)
	}

	if err := s.bus.Publish(ctx, feed.ChannelTopic(ch.ID), feed.Event{Kind: feed.KindMessage, RefID: m.ID}); err != nil {
		s.log.Warn("chat: publish message event failed", "channel_id", ch.ID, "error", err)
	}
	return m, nil
}

// Subscribe replays the channel's history and then tails it live, in
// server order, until the subscription is cancelled. While it is open the
// viewer counts as present in the channel.
func (s *Stream) Subscribe(ctx context.Context, viewer model.Profile, channelID string) (*stream.Subscription[model.Message], error) {
	ch, err := s.store.ChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.HasParticipant(viewer.ID) {
		return nil, model.Forbidden("not a participant of this channel")
	}

	l, err := s.bus.Subscribe(ctx, feed.ChannelTopic(ch.ID))
	if err != nil {
		return nil, model.Transient("subscribe channel", err)
	}
	if err := s.presence.Enter(ctx, ch.ID, viewer.ID); err != nil {
		s.log.Warn("chat: presence enter failed", "channel_id", ch.ID, "user_id", viewer.ID, "error", err)
	}

	return stream.Start(ctx, func(ctx context.Context, emit stream.Emit[model.Message]) error {
		defer l.Close()
		defer s.leave(ctx, ch.ID, viewer.ID)

		tick := time.NewTicker(s.Heartbeat)
		defer tick.Stop()

		tl := stream.NewTimeline()
		var cursor model.Message
		for {
			for {
				page, err := s.store.MessagesAfter(ctx, ch.ID, cursor, pageSize)
				if err != nil {
					return err
				}
				for _, m := range page {
					cursor = m
					if tl.Insert(m) && !emit(m) {
						return nil
					}
				}
				if len(page) < pageSize {
					break
				}
			}

		wait:
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-tick.C:
					if err := s.presence.Touch(ctx, ch.ID, viewer.ID); err != nil {
						s.log.Warn("chat: presence heartbeat failed", "channel_id", ch.ID, "error", err)
					}
				case _, ok := <-l.C:
					if !ok || !l.Drain() {
						return model.Transient("channel feed closed", nil)
					}
					break wait
				}
			}
		}
	}), nil
}

func (s *Stream) leave(ctx context.Context, channelID, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.presence.Leave(ctx, channelID, userID); err != nil {
		s.log.Warn("chat: presence leave failed", "channel_id", channelID, "user_id", userID, "error", err)
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLen {
		return text
	}
	r := []rune(text)
	return string(r[:previewLen]) + "…"
}
