package http

import (
	"strings"
	"time"

	"cofrinho/internal/core"
)

// leadView is the dashboard projection of a user.
type leadView struct {
	ID              int64     `json:"id"`
	Phone           string    `json:"phone"`
	Name            string    `json:"name"`
	LastInteraction time.Time `json:"last_interaction"`
}

// messageView is the dashboard projection of one logged message.
type messageView struct {
	ID        int64     `json:"id"`
	LeadID    int64     `json:"lead_id"`
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func toLeadViews(users []core.User) []leadView {
	out := make([]leadView, 0, len(users))
	for _, u := range users {
		out = append(out, leadView{
			ID:              u.ID,
			Phone:           u.Address,
			Name:            u.DisplayName,
			LastInteraction: u.LastInteraction,
		})
	}
	return out
}

func toMessageViews(msgs []core.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:        m.ID,
			LeadID:    m.UserID,
			Direction: string(m.Direction),
			Body:      m.Body,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
