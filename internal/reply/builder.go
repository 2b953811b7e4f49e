package reply

import (
	"fmt"
	"strings"
)

// builder provides a fluent API for assembling a payload line by line.
type builder struct {
	address string
	lines   []string
	label   string
	payload string
}

func newBuilder(address string) *builder {
	return &builder{address: address}
}

// Line appends one line of text.
func (b *builder) Line(s string) *builder {
	b.lines = append(b.lines, s)
	return b
}

// Linef appends one formatted line.
func (b *builder) Linef(format string, args ...any) *builder {
	return b.Line(fmt.Sprintf(format, args...))
}

// Blank appends an empty separator line.
func (b *builder) Blank() *builder {
	return b.Line("")
}

// Button turns the payload into a single-button message.
func (b *builder) Button(label, payload string) *builder {
	b.label = label
	b.payload = payload
	return b
}

func (b *builder) Build() Payload {
	p := Payload{
		Address: b.address,
		Kind:    Text,
		Text:    strings.TrimRight(strings.Join(b.lines, "\n"), "\n"),
	}
	if b.payload != "" {
		p.Kind = Button
		p.ButtonLabel = b.label
		p.ButtonPayload = b.payload
	}
	return p
}
