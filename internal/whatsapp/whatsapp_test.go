package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofrinho/internal/dialogue"
	"cofrinho/internal/log"
	"cofrinho/internal/reply"
)

const textWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "102290129340398",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550783881", "phone_number_id": "106540352242922"},
        "contacts": [{"profile": {"name": "Ana"}, "wa_id": "5511999990000"}],
        "messages": [{
          "from": "5511999990000",
          "id": "wamid.TEXT1",
          "timestamp": "1749416383",
          "type": "text",
          "text": {"body": "10,50 padaria"}
        }]
      }
    }]
  }]
}`

const buttonWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "changes": [{
      "value": {
        "contacts": [{"profile": {"name": "Bob"}, "wa_id": "5511888880000"}],
        "messages": [{
          "from": "5511888880000",
          "id": "wamid.BTN1",
          "type": "interactive",
          "interactive": {"type": "button_reply", "button_reply": {"id": "del_ABCDE", "title": "Excluir"}}
        }, {
          "from": "5511888880000",
          "id": "wamid.IMG1",
          "type": "image",
          "image": {"id": "123", "mime_type": "image/jpeg"}
        }, {
          "from": "5511888880000",
          "id": "wamid.QR1",
          "type": "button",
          "button": {"payload": "del_FGHIJ", "text": "Excluir"}
        }]
      }
    }]
  }]
}`

func TestDecodeWebhook_Text(t *testing.T) {
	events, err := DecodeWebhook([]byte(textWebhook))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, dialogue.InboundEvent{
		MessageID:   "wamid.TEXT1",
		Address:     "5511999990000",
		DisplayName: "Ana",
		Text:        "10,50 padaria",
	}, events[0])
}

func TestDecodeWebhook_ButtonsAndMedia(t *testing.T) {
	events, err := DecodeWebhook([]byte(buttonWebhook))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.True(t, events[0].IsButton)
	assert.Equal(t, "del_ABCDE", events[0].ButtonPayload)
	assert.Equal(t, "Bob", events[0].DisplayName)

	assert.False(t, events[1].IsButton)
	assert.Empty(t, events[1].Text, "media carries no text")
	assert.Equal(t, "wamid.IMG1", events[1].MessageID)

	assert.True(t, events[2].IsButton)
	assert.Equal(t, "del_FGHIJ", events[2].ButtonPayload)
}

func TestDecodeWebhook_Rejections(t *testing.T) {
	_, err := DecodeWebhook([]byte(`{"object":"page","entry":[]}`))
	assert.ErrorIs(t, err, ErrForeignObject)

	_, err = DecodeWebhook([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	events, err := DecodeWebhook([]byte(`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`))
	require.NoError(t, err)
	assert.Empty(t, events, "status updates are not messages")
}

func TestVerifySubscription(t *testing.T) {
	got, ok := VerifySubscription("subscribe", "secret", "12345", "secret")
	assert.True(t, ok)
	assert.Equal(t, "12345", got)

	_, ok = VerifySubscription("subscribe", "wrong", "12345", "secret")
	assert.False(t, ok)
	_, ok = VerifySubscription("unsubscribe", "secret", "12345", "secret")
	assert.False(t, ok)
	_, ok = VerifySubscription("subscribe", "", "12345", "")
	assert.False(t, ok, "an unset verify token never matches")
}

func TestVerifySignature(t *testing.T) {
	body := []byte(textWebhook)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature(body, header, "app-secret"))
	assert.False(t, VerifySignature(body, header, "other"))
	assert.False(t, VerifySignature(body, "sha1=abc", "app-secret"))
	assert.False(t, VerifySignature(body, "sha256=zz", "app-secret"))
	assert.True(t, VerifySignature(body, "", ""), "no secret configured")
}

type capture struct {
	mu      sync.Mutex
	path    string
	auth    string
	payload map[string]any
}

func newGraphServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		_ = json.Unmarshal(body, &c.payload)
		c.mu.Unlock()
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.OUT"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIURL:        url + "/",
		APIVersion:    "v21.0",
		PhoneNumberID: "106540352242922",
		Token:         "tok",
		HTTPClient:    http.DefaultClient,
		Logger:        log.Discard(),
	})
	require.NoError(t, err)
	return c
}

func TestClientSendText(t *testing.T) {
	srv, got := newGraphServer(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	err := c.Send(context.Background(), reply.TextPayload("5511999990000", "olá"))
	require.NoError(t, err)

	got.mu.Lock()
	defer got.mu.Unlock()
	assert.Equal(t, "/v21.0/106540352242922/messages", got.path)
	assert.Equal(t, "Bearer tok", got.auth)
	assert.Equal(t, "whatsapp", got.payload["messaging_product"])
	assert.Equal(t, "5511999990000", got.payload["to"])
	assert.Equal(t, "text", got.payload["type"])
	assert.Equal(t, map[string]any{"body": "olá"}, got.payload["text"])
}

func TestClientSendButton(t *testing.T) {
	srv, got := newGraphServer(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	err := c.Send(context.Background(), reply.Payload{
		Address:       "5511999990000",
		Kind:          reply.Button,
		Text:          "✅ Gasto registrado!",
		ButtonLabel:   "🗑️ Excluir este lançamento agora mesmo",
		ButtonPayload: "del_ABCDE",
	})
	require.NoError(t, err)

	got.mu.Lock()
	defer got.mu.Unlock()
	assert.Equal(t, "interactive", got.payload["type"])
	inter := got.payload["interactive"].(map[string]any)
	assert.Equal(t, "button", inter["type"])
	buttons := inter["action"].(map[string]any)["buttons"].([]any)
	require.Len(t, buttons, 1)
	rep := buttons[0].(map[string]any)["reply"].(map[string]any)
	assert.Equal(t, "del_ABCDE", rep["id"])
	assert.LessOrEqual(t, len([]rune(rep["title"].(string))), 20)
}

func TestClientSendError(t *testing.T) {
	srv, _ := newGraphServer(t, http.StatusUnauthorized)
	c := newTestClient(t, srv.URL)

	err := c.Send(context.Background(), reply.TextPayload("5511", "x"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.True(t, strings.Contains(apiErr.Body, "Invalid OAuth"))

	assert.Error(t, c.Send(context.Background(), reply.TextPayload(" ", "x")))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Token: "t"})
	assert.Error(t, err)
	_, err = NewClient(Config{PhoneNumberID: "1"})
	assert.Error(t, err)

	c, err := NewClient(Config{PhoneNumberID: "1", Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL+"/"+DefaultAPIVersion+"/1/messages", c.endpoint)
}
