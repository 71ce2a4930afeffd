package wire

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// decode unmarshals a nested message field.
func decode[T any, P interface {
	*T
	Payload
}](f field) (T, error) {
	var v T
	err := P(&v).Unmarshal(f.b)
	return v, err
}

type Empty struct{}

func (*Empty) Marshal() []byte { return nil }

func (*Empty) Unmarshal(b []byte) error {
	return walk(b, func(protowire.Number, field) error { return nil })
}

type Profile struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

func (m *Profile) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Email)
	b = appendString(b, 3, m.Role)
	b = appendString(b, 4, m.FirstName)
	b = appendString(b, 5, m.LastName)
	b = appendString(b, 6, m.DisplayName)
	b = appendString(b, 7, m.AvatarURL)
	b = appendString(b, 8, m.Specialization)
	return b
}

func (m *Profile) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.ID = f.str()
		case 2:
			m.Email = f.str()
		case 3:
			m.Role = f.str()
		case 4:
			m.FirstName = f.str()
		case 5:
			m.LastName = f.str()
		case 6:
			m.DisplayName = f.str()
		case 7:
			m.AvatarURL = f.str()
		case 8:
			m.Specialization = f.str()
		}
		return nil
	})
}

type ProfileList struct {
	Profiles []Profile `json:"profiles"`
}

func (m *ProfileList) Marshal() []byte {
	var b []byte
	for i := range m.Profiles {
		b = appendPayload(b, 1, &m.Profiles[i])
	}
	return b
}

func (m *ProfileList) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num != 1 {
			return nil
		}
		p, err := decode[Profile](f)
		if err != nil {
			return err
		}
		m.Profiles = append(m.Profiles, p)
		return nil
	})
}

type SignUpRequest struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Role           string
	Specialization string
}

func (m *SignUpRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Email)
	b = appendString(b, 2, m.Password)
	b = appendString(b, 3, m.FirstName)
	b = appendString(b, 4, m.LastName)
	b = appendString(b, 5, m.Role)
	b = appendString(b, 6, m.Specialization)
	return b
}

func (m *SignUpRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Email = f.str()
		case 2:
			m.Password = f.str()
		case 3:
			m.FirstName = f.str()
		case 4:
			m.LastName = f.str()
		case 5:
			m.Role = f.str()
		case 6:
			m.Specialization = f.str()
		}
		return nil
	})
}

type SignInRequest struct {
	Email    string
	Password string
}

func (m *SignInRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Email)
	b = appendString(b, 2, m.Password)
	return b
}

func (m *SignInRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Email = f.str()
		case 2:
			m.Password = f.str()
		}
		return nil
	})
}

type RefreshRequest struct {
	RefreshToken string
}

func (m *RefreshRequest) Marshal() []byte {
	return appendString(nil, 1, m.RefreshToken)
}

func (m *RefreshRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.RefreshToken = f.str()
		}
		return nil
	})
}

type AuthResponse struct {
	AccessToken  string
	RefreshToken string
	Profile      *Profile
	ExpiresIn    int64 // seconds
}

func (m *AuthResponse) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.AccessToken)
	b = appendString(b, 2, m.RefreshToken)
	if m.Profile != nil {
		b = appendPayload(b, 3, m.Profile)
	}
	b = appendInt(b, 4, m.ExpiresIn)
	return b
}

func (m *AuthResponse) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.AccessToken = f.str()
		case 2:
			m.RefreshToken = f.str()
		case 3:
			p, err := decode[Profile](f)
			if err != nil {
				return err
			}
			m.Profile = &p
		case 4:
			m.ExpiresIn = f.int()
		}
		return nil
	})
}

type AuthorizeRequest struct {
	AllowedRoles []string
}

func (m *AuthorizeRequest) Marshal() []byte {
	return appendStrings(nil, 1, m.AllowedRoles)
}

func (m *AuthorizeRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.AllowedRoles = append(m.AllowedRoles, f.str())
		}
		return nil
	})
}

type AuthorizeResponse struct {
	Decision string
}

func (m *AuthorizeResponse) Marshal() []byte {
	return appendString(nil, 1, m.Decision)
}

func (m *AuthorizeResponse) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.Decision = f.str()
		}
		return nil
	})
}

type Channel struct {
	ID              string    `json:"id"`
	RequesterID     string    `json:"requester_id"`
	ProviderID      string    `json:"provider_id"`
	RequesterName   string    `json:"requester_name"`
	ProviderName    string    `json:"provider_name"`
	RequesterAvatar string    `json:"requester_avatar,omitempty"`
	Specialization  string    `json:"specialization,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageAt   time.Time `json:"last_message_at"`
	Status          string    `json:"status"`
}

func (m *Channel) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.RequesterID)
	b = appendString(b, 3, m.ProviderID)
	b = appendString(b, 4, m.RequesterName)
	b = appendString(b, 5, m.ProviderName)
	b = appendString(b, 6, m.RequesterAvatar)
	b = appendString(b, 7, m.Specialization)
	b = appendTime(b, 8, m.CreatedAt)
	b = appendString(b, 9, m.LastMessage)
	b = appendTime(b, 10, m.LastMessageAt)
	b = appendString(b, 11, m.Status)
	return b
}

func (m *Channel) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		var err error
		switch num {
		case 1:
			m.ID = f.str()
		case 2:
			m.RequesterID = f.str()
		case 3:
			m.ProviderID = f.str()
		case 4:
			m.RequesterName = f.str()
		case 5:
			m.ProviderName = f.str()
		case 6:
			m.RequesterAvatar = f.str()
		case 7:
			m.Specialization = f.str()
		case 8:
			m.CreatedAt, err = f.time()
		case 9:
			m.LastMessage = f.str()
		case 10:
			m.LastMessageAt, err = f.time()
		case 11:
			m.Status = f.str()
		}
		return err
	})
}

type ChannelList struct {
	Channels []Channel `json:"channels"`
}

func (m *ChannelList) Marshal() []byte {
	var b []byte
	for i := range m.Channels {
		b = appendPayload(b, 1, &m.Channels[i])
	}
	return b
}

func (m *ChannelList) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num != 1 {
			return nil
		}
		c, err := decode[Channel](f)
		if err != nil {
			return err
		}
		m.Channels = append(m.Channels, c)
		return nil
	})
}

type FindOrCreateChannelRequest struct {
	ProviderID string
}

func (m *FindOrCreateChannelRequest) Marshal() []byte {
	return appendString(nil, 1, m.ProviderID)
}

func (m *FindOrCreateChannelRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.ProviderID = f.str()
		}
		return nil
	})
}

type ChannelResponse struct {
	Channel *Channel
	Created bool
}

func (m *ChannelResponse) Marshal() []byte {
	var b []byte
	if m.Channel != nil {
		b = appendPayload(b, 1, m.Channel)
	}
	b = appendBool(b, 2, m.Created)
	return b
}

func (m *ChannelResponse) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			c, err := decode[Channel](f)
			if err != nil {
				return err
			}
			m.Channel = &c
		case 2:
			m.Created = f.bool()
		}
		return nil
	})
}

type Message struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	SenderID   string    `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
	Seq        int64     `json:"seq"`
}

func (m *Message) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.ChannelID)
	b = appendString(b, 3, m.SenderID)
	b = appendString(b, 4, m.SenderRole)
	b = appendString(b, 5, m.Text)
	b = appendTime(b, 6, m.SentAt)
	b = appendInt(b, 7, m.Seq)
	return b
}

func (m *Message) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		var err error
		switch num {
		case 1:
			m.ID = f.str()
		case 2:
			m.ChannelID = f.str()
		case 3:
			m.SenderID = f.str()
		case 4:
			m.SenderRole = f.str()
		case 5:
			m.Text = f.str()
		case 6:
			m.SentAt, err = f.time()
		case 7:
			m.Seq = f.int()
		}
		return err
	})
}

type AppendMessageRequest struct {
	ChannelID string
	Text      string
}

func (m *AppendMessageRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ChannelID)
	b = appendString(b, 2, m.Text)
	return b
}

func (m *AppendMessageRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.ChannelID = f.str()
		case 2:
			m.Text = f.str()
		}
		return nil
	})
}

type SubscribeMessagesRequest struct {
	ChannelID string
}

func (m *SubscribeMessagesRequest) Marshal() []byte {
	return appendString(nil, 1, m.ChannelID)
}

func (m *SubscribeMessagesRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.ChannelID = f.str()
		}
		return nil
	})
}

type Appointment struct {
	ID            string    `json:"id"`
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	ProviderID    string    `json:"provider_id"`
	ProviderName  string    `json:"provider_name"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	DecidedAt     time.Time `json:"decided_at"`
}

func (m *Appointment) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.RequesterID)
	b = appendString(b, 3, m.RequesterName)
	b = appendString(b, 4, m.ProviderID)
	b = appendString(b, 5, m.ProviderName)
	b = appendString(b, 6, m.Title)
	b = appendString(b, 7, m.Description)
	b = appendTime(b, 8, m.ScheduledAt)
	b = appendString(b, 9, m.Status)
	b = appendTime(b, 10, m.CreatedAt)
	b = appendTime(b, 11, m.DecidedAt)
	return b
}

func (m *Appointment) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		var err error
		switch num {
		case 1:
			m.ID = f.str()
		case 2:
			m.RequesterID = f.str()
		case 3:
			m.RequesterName = f.str()
		case 4:
			m.ProviderID = f.str()
		case 5:
			m.ProviderName = f.str()
		case 6:
			m.Title = f.str()
		case 7:
			m.Description = f.str()
		case 8:
			m.ScheduledAt, err = f.time()
		case 9:
			m.Status = f.str()
		case 10:
			m.CreatedAt, err = f.time()
		case 11:
			m.DecidedAt, err = f.time()
		}
		return err
	})
}

type AppointmentList struct {
	Appointments []Appointment `json:"appointments"`
}

func (m *AppointmentList) Marshal() []byte {
	var b []byte
	for i := range m.Appointments {
		b = appendPayload(b, 1, &m.Appointments[i])
	}
	return b
}

func (m *AppointmentList) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num != 1 {
			return nil
		}
		a, err := decode[Appointment](f)
		if err != nil {
			return err
		}
		m.Appointments = append(m.Appointments, a)
		return nil
	})
}

type CreateAppointmentRequest struct {
	ProviderID  string
	Title       string
	Description string
	ScheduledAt time.Time
}

func (m *CreateAppointmentRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ProviderID)
	b = appendString(b, 2, m.Title)
	b = appendString(b, 3, m.Description)
	b = appendTime(b, 4, m.ScheduledAt)
	return b
}

func (m *CreateAppointmentRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		var err error
		switch num {
		case 1:
			m.ProviderID = f.str()
		case 2:
			m.Title = f.str()
		case 3:
			m.Description = f.str()
		case 4:
			m.ScheduledAt, err = f.time()
		}
		return err
	})
}

type DecideAppointmentRequest struct {
	AppointmentID string
	Outcome       string
}

func (m *DecideAppointmentRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.AppointmentID)
	b = appendString(b, 2, m.Outcome)
	return b
}

func (m *DecideAppointmentRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.AppointmentID = f.str()
		case 2:
			m.Outcome = f.str()
		}
		return nil
	})
}

type WatchAppointmentsRequest struct {
	Filter string
}

func (m *WatchAppointmentsRequest) Marshal() []byte {
	return appendString(nil, 1, m.Filter)
}

func (m *WatchAppointmentsRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.Filter = f.str()
		}
		return nil
	})
}

type Notification struct {
	ID           string            `json:"id"`
	TargetUserID string            `json:"target_user_id"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	RefID        string            `json:"ref_id,omitempty"`
	Payload      map[string]string `json:"payload,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	Read         bool              `json:"read"`
}

func (m *Notification) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.TargetUserID)
	b = appendString(b, 3, m.Type)
	b = appendString(b, 4, m.Title)
	b = appendString(b, 5, m.Body)
	b = appendString(b, 6, m.RefID)
	b = appendMap(b, 7, m.Payload)
	b = appendTime(b, 8, m.CreatedAt)
	b = appendBool(b, 9, m.Read)
	return b
}

func (m *Notification) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		var err error
		switch num {
		case 1:
			m.ID = f.str()
		case 2:
			m.TargetUserID = f.str()
		case 3:
			m.Type = f.str()
		case 4:
			m.Title = f.str()
		case 5:
			m.Body = f.str()
		case 6:
			m.RefID = f.str()
		case 7:
			var k, v string
			k, v, err = f.mapEntry()
			if err == nil {
				if m.Payload == nil {
					m.Payload = make(map[string]string)
				}
				m.Payload[k] = v
			}
		case 8:
			m.CreatedAt, err = f.time()
		case 9:
			m.Read = f.bool()
		}
		return err
	})
}

type NotificationList struct {
	Notifications []Notification `json:"notifications"`
}

func (m *NotificationList) Marshal() []byte {
	var b []byte
	for i := range m.Notifications {
		b = appendPayload(b, 1, &m.Notifications[i])
	}
	return b
}

func (m *NotificationList) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num != 1 {
			return nil
		}
		n, err := decode[Notification](f)
		if err != nil {
			return err
		}
		m.Notifications = append(m.Notifications, n)
		return nil
	})
}

type NotificationRef struct {
	NotificationID string
}

func (m *NotificationRef) Marshal() []byte {
	return appendString(nil, 1, m.NotificationID)
}

func (m *NotificationRef) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.NotificationID = f.str()
		}
		return nil
	})
}

type RaiseEmergencyRequest struct {
	Note     string
	Location string
}

func (m *RaiseEmergencyRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Note)
	b = appendString(b, 2, m.Location)
	return b
}

func (m *RaiseEmergencyRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Note = f.str()
		case 2:
			m.Location = f.str()
		}
		return nil
	})
}

type SearchProvidersRequest struct {
	Query string
	Limit int64
}

func (m *SearchProvidersRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Query)
	b = appendInt(b, 2, m.Limit)
	return b
}

func (m *SearchProvidersRequest) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Query = f.str()
		case 2:
			m.Limit = f.int()
		}
		return nil
	})
}
