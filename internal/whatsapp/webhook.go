// Package whatsapp adapts the WhatsApp Cloud API to the dialogue package:
// it decodes webhook notifications into inbound events and delivers reply
// payloads through the Graph API messages endpoint.
package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cofrinho/internal/dialogue"
)

// BusinessAccountObject is the only webhook object this package accepts.
const BusinessAccountObject = "whatsapp_business_account"

var (
	// ErrForeignObject is returned for notifications about other Meta products.
	ErrForeignObject = errors.New("webhook object is not a whatsapp business account")
	ErrMalformed     = errors.New("malformed webhook payload")
)

type (
	webhookPayload struct {
		Object string  `json:"object"`
		Entry  []entry `json:"entry"`
	}

	entry struct {
		ID      string   `json:"id"`
		Changes []change `json:"changes"`
	}

	change struct {
		Field string      `json:"field"`
		Value changeValue `json:"value"`
	}

	changeValue struct {
		MessagingProduct string    `json:"messaging_product"`
		Contacts         []contact `json:"contacts"`
		Messages         []message `json:"messages"`
	}

	contact struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	}

	message struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      *struct {
			Body string `json:"body"`
		} `json:"text,omitempty"`
		Interactive *struct {
			Type        string `json:"type"`
			ButtonReply *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"button_reply,omitempty"`
		} `json:"interactive,omitempty"`
		// Quick-reply buttons on template messages.
		Button *struct {
			Payload string `json:"payload"`
			Text    string `json:"text"`
		} `json:"button,omitempty"`
	}
)

// DecodeWebhook turns a webhook notification into inbound events, one per
// message across every entry and change. Status notifications carry no
// messages and decode to an empty slice. Messages without text (media,
// location, reactions) become text events with empty text.
func DecodeWebhook(body []byte) ([]dialogue.InboundEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Object != BusinessAccountObject {
		return nil, ErrForeignObject
	}

	var events []dialogue.InboundEvent
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			for _, m := range c.Value.Messages {
				if m.From == "" {
					continue
				}
				events = append(events, toEvent(m, contactName(c.Value.Contacts, m.From)))
			}
		}
	}
	return events, nil
}

func toEvent(m message, name string) dialogue.InboundEvent {
	ev := dialogue.InboundEvent{
		MessageID:   m.ID,
		Address:     m.From,
		DisplayName: name,
	}
	switch {
	case m.Type == "text" && m.Text != nil:
		ev.Text = m.Text.Body
	case m.Type == "interactive" && m.Interactive != nil && m.Interactive.ButtonReply != nil:
		ev.IsButton = true
		ev.ButtonPayload = m.Interactive.ButtonReply.ID
		ev.Text = m.Interactive.ButtonReply.Title
	case m.Type == "button" && m.Button != nil:
		ev.IsButton = true
		ev.ButtonPayload = m.Button.Payload
		ev.Text = m.Button.Text
	}
	return ev
}

// contactName prefers the contact whose wa_id matches the sender.
func contactName(contacts []contact, from string) string {
	for _, c := range contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(contacts) > 0 {
		return contacts[0].Profile.Name
	}
	return ""
}

// VerifySubscription answers the GET handshake Meta performs when the
// webhook is registered. It returns the challenge to echo back.
func VerifySubscription(mode, token, challenge, expected string) (string, bool) {
	if mode != "subscribe" || expected == "" {
		return "", false
	}
	if !hmac.Equal([]byte(token), []byte(expected)) {
		return "", false
	}
	return challenge, true
}

// VerifySignature checks the X-Hub-Signature-256 header against the app
// secret. An empty secret disables the check.
func VerifySignature(body []byte, header, appSecret string) bool {
	if appSecret == "" {
		return true
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
