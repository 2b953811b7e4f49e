package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"cofrinho/internal/log"
	"cofrinho/internal/reply"
)

const (
	DefaultAPIURL     = "https://graph.facebook.com"
	DefaultAPIVersion = "v21.0"

	// Cloud API limits for interactive reply buttons.
	maxButtonTitle = 20
	maxButtonID    = 256
)

// Config holds the Graph API coordinates of the sending phone number.
type Config struct {
	APIURL        string
	APIVersion    string
	PhoneNumberID string
	Token         string
	HTTPClient    *http.Client
	Logger        *log.Logger
}

type Client struct {
	endpoint string
	token    string
	http     *http.Client
	logger   *log.Logger
}

// APIError is returned when the Graph API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api: status %d: %s", e.StatusCode, e.Body)
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("missing phone number id")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("missing access token")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClientWithPooling()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		endpoint: fmt.Sprintf("%s/%s/%s/messages", apiURL, version, cfg.PhoneNumberID),
		token:    cfg.Token,
		http:     httpClient,
		logger:   logger.WithComponent(log.ComponentWhatsApp),
	}, nil
}

// newHTTPClientWithPooling keeps connections to the Graph API warm.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

type (
	outbound struct {
		MessagingProduct string       `json:"messaging_product"`
		RecipientType    string       `json:"recipient_type"`
		To               string       `json:"to"`
		Type             string       `json:"type"`
		Text             *textBody    `json:"text,omitempty"`
		Interactive      *interactive `json:"interactive,omitempty"`
	}

	textBody struct {
		Body string `json:"body"`
	}

	interactive struct {
		Type   string   `json:"type"`
		Body   textPart `json:"body"`
		Action action   `json:"action"`
	}

	textPart struct {
		Text string `json:"text"`
	}

	action struct {
		Buttons []button `json:"buttons"`
	}

	button struct {
		Type  string      `json:"type"`
		Reply buttonReply `json:"reply"`
	}

	buttonReply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
)

// Send delivers the payload as a text or single-button interactive message.
func (c *Client) Send(ctx context.Context, p reply.Payload) error {
	if strings.TrimSpace(p.Address) == "" {
		return errors.New("missing recipient address")
	}
	body, err := json.Marshal(buildMessage(p))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.DebugContext(ctx, "Message sent",
		log.FieldAddress, p.Address,
		"kind", string(p.Kind))
	return nil
}

func buildMessage(p reply.Payload) outbound {
	msg := outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               p.Address,
	}
	if p.Kind == reply.Button && p.ButtonPayload != "" {
		msg.Type = "interactive"
		msg.Interactive = &interactive{
			Type: "button",
			Body: textPart{Text: p.Text},
			Action: action{Buttons: []button{{
				Type: "reply",
				Reply: buttonReply{
					ID:    truncate(p.ButtonPayload, maxButtonID),
					Title: truncate(p.ButtonLabel, maxButtonTitle),
				},
			}}},
		}
		return msg
	}
	msg.Type = "text"
	msg.Text = &textBody{Body: p.Text}
	return msg
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
