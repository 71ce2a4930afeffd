package wire

import "campus-care-api/internal/model"

func FromProfile(p model.Profile) Profile {
	return Profile{
		ID:             p.ID,
		Email:          p.Email,
		Role:           string(p.Role),
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		DisplayName:    p.DisplayName,
		AvatarURL:      p.AvatarURL,
		Specialization: p.Specialization,
	}
}

func FromProfiles(ps []model.Profile) *ProfileList {
	out := &ProfileList{Profiles: make([]Profile, len(ps))}
	for i, p := range ps {
		out.Profiles[i] = FromProfile(p)
	}
	return out
}

func FromChannel(c model.Channel) Channel {
	return Channel{
		ID:              c.ID,
		RequesterID:     c.RequesterID,
		ProviderID:      c.ProviderID,
		RequesterName:   c.RequesterName,
		ProviderName:    c.ProviderName,
		RequesterAvatar: c.RequesterAvatar,
		Specialization:  c.Specialization,
		CreatedAt:       c.CreatedAt,
		LastMessage:     c.LastMessage,
		LastMessageAt:   c.LastMessageAt,
		Status:          string(c.Status),
	}
}

func FromChannels(cs []model.Channel) *ChannelList {
	out := &ChannelList{Channels: make([]Channel, len(cs))}
	for i, c := range cs {
		out.Channels[i] = FromChannel(c)
	}
	return out
}

func FromMessage(m model.Message) *Message {
	return &Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		SenderID:   m.SenderID,
		SenderRole: string(m.SenderRole),
		Text:       m.Text,
		SentAt:     m.SentAt,
		Seq:        m.Seq,
	}
}

func FromAppointment(a model.Appointment) Appointment {
	return Appointment{
		ID:            a.ID,
		RequesterID:   a.RequesterID,
		RequesterName: a.RequesterName,
		ProviderID:    a.ProviderID,
		ProviderName:  a.ProviderName,
		Title:         a.Title,
		Description:   a.Description,
		ScheduledAt:   a.ScheduledAt,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
		DecidedAt:     a.DecidedAt,
	}
}

func FromAppointments(as []model.Appointment) *AppointmentList {
	out := &AppointmentList{Appointments: make([]Appointment, len(as))}
	for i, a := range as {
		out.Appointments[i] = FromAppointment(a)
	}
	return out
}

func FromNotification(n model.Notification) Notification {
	return Notification{
		ID:           n.ID,
		TargetUserID: n.TargetUserID,
		Type:         string(n.Type),
		Title:        n.Title,
		Body:         n.Body,
		RefID:        n.RefID,
		Payload:      n.Payload,
		CreatedAt:    n.CreatedAt,
		Read:         n.Read,
	}
}

func FromNotifications(ns []model.Notification) *NotificationList {
	out := &NotificationList{Notifications: make([]Notification, len(ns))}
	for i, n := range ns {
		out.Notifications[i] = FromNotification(n)
	}
	return out
}
