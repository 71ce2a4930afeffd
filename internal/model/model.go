package model

import "time"

type Role string

const (
	RoleRequester          Role = "requester"
	RoleProvider           Role = "provider"
	RoleTransportAssistant Role = "transport-assistant"

	// profile exists but its role could not be read
	RoleUnknown Role = ""
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleRequester, RoleProvider, RoleTransportAssistant:
		return Role(s), true
	}
	return RoleUnknown, false
}

// Account holds sign-in credentials. Its ID is the principal id.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Profile struct {
	ID             string
	Email          string
	Role           Role
	FirstName      string
	LastName       string
	DisplayName    string
	AvatarURL      string
	Specialization string
	CreatedAt      time.Time
}

func (p Profile) RoleKnown() bool {
	_, ok := ParseRole(string(p.Role))
	return ok
}

type ChannelStatus string

const ChannelActive ChannelStatus = "active"

type Channel struct {
	ID              string
	RequesterID     string
	ProviderID      string
	RequesterName   string
	ProviderName    string
	RequesterAvatar string
	Specialization  string
	CreatedAt       time.Time
	LastMessage     string
	LastMessageAt   time.Time // zero until the first message
	Status          ChannelStatus
}

func (c Channel) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.RequesterID || userID == c.ProviderID)
}

// Counterpart returns the other participant of the channel.
func (c Channel) Counterpart(userID string) (string, bool) {
	switch userID {
	case c.RequesterID:
		return c.ProviderID, true
	case c.ProviderID:
		return c.RequesterID, true
	}
	return "", false
}

type Message struct {
	ID         string
	ChannelID  string
	SenderID   string
	SenderRole Role
	Text       string
	SentAt     time.Time
	Seq        int64
}

// Before orders messages by server timestamp; seq breaks ties.
func (m Message) Before(o Message) bool {
	if !m.SentAt.Equal(o.SentAt) {
		return m.SentAt.Before(o.SentAt)
	}
	if m.Seq != o.Seq {
		return m.Seq < o.Seq
	}
	return m.ID < o.ID
}

type AppointmentStatus string

const (
	StatusPending  AppointmentStatus = "pending"
	StatusApproved AppointmentStatus = "approved"
	StatusRejected AppointmentStatus = "rejected"
)

func (s AppointmentStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func ParseOutcome(s string) (AppointmentStatus, bool) {
	switch AppointmentStatus(s) {
	case StatusApproved, StatusRejected:
		return AppointmentStatus(s), true
	}
	return "", false
}

type Appointment struct {
	ID            string
	RequesterID   string
	RequesterName string
	ProviderID    string
	ProviderName  string
	Title         string
	Description   string
	ScheduledAt   time.Time
	Status        AppointmentStatus
	CreatedAt     time.Time
	DecidedAt     time.Time // zero while pending
}

type AppointmentFilter string

const (
	FilterPending  AppointmentFilter = "pending"
	FilterApproved AppointmentFilter = "approved"
	FilterAll      AppointmentFilter = "all"
)

func ParseFilter(s string) (AppointmentFilter, bool) {
	switch AppointmentFilter(s) {
	case FilterPending, FilterApproved, FilterAll:
		return AppointmentFilter(s), true
	case "":
		return FilterAll, true
	}
	return "", false
}

type NotificationType string

const (
	NotifyNewAppointment     NotificationType = "new_appointment"
	NotifyAppointmentDecided NotificationType = "appointment_decided"
	NotifyNewMessage         NotificationType = "new_message"
	NotifyEmergency          NotificationType = "emergency"
)

type Notification struct {
	ID           string
	TargetUserID string
	Type         NotificationType
	Title        string
	Body         string
	RefID        string // appointment or channel id
	Payload      map[string]string
	CreatedAt    time.Time
	Read         bool
}

type EventKind string

const (
	EventAppointmentCreated EventKind = "appointment.created"
	EventAppointmentDecided EventKind = "appointment.decided"
	EventMessageAppended    EventKind = "message.appended"
	EventEmergencyRaised    EventKind = "emergency.raised"
)

// OutboxEvent is written in the same transaction as the change it
// describes and consumed by notification fan-out.
type OutboxEvent struct {
	ID        int64
	Kind      EventKind
	RefID     string // appointment id, or channel id for messages
	ActorID   string
	Payload   map[string]string
	CreatedAt time.Time
	Attempts  int // failed deliveries so far
}
