// Package batch implements the per-operator outgoing message batch: a
// closed set of message kinds, an ordered bounded builder, and blob
// splitting for bulk input.
package batch

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

func (k Kind) valid() bool {
	switch k {
	case KindText, KindPhoto, KindVideo, KindDocument:
		return true
	}
	return false
}

// Message is one batch entry. Text messages carry Content; media
// messages carry a platform file reference plus an optional caption.
// The zero value is not a valid message.
type Message struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content,omitempty"`
	FileRef string `json:"file_ref,omitempty"`
	Caption string `json:"caption,omitempty"`
}

func Text(content string) Message { return Message{Kind: KindText, Content: content} }

func Photo(fileRef, caption string) Message {
	return Message{Kind: KindPhoto, FileRef: fileRef, Caption: caption}
}

func Video(fileRef, caption string) Message {
	return Message{Kind: KindVideo, FileRef: fileRef, Caption: caption}
}

func Document(fileRef, caption string) Message {
	return Message{Kind: KindDocument, FileRef: fileRef, Caption: caption}
}

// Validate enforces the kind/payload pairing. It runs on every decode,
// so malformed records are rejected before they reach storage or the
// dispatcher.
func (m Message) Validate() error {
	switch m.Kind {
	case KindText:
		if m.Content == "" {
			return fmt.Errorf("text message without content")
		}
		if m.FileRef != "" {
			return fmt.Errorf("text message with file_ref")
		}
	case KindPhoto, KindVideo, KindDocument:
		if m.FileRef == "" {
			return fmt.Errorf("%s message without file_ref", m.Kind)
		}
		if m.Content != "" {
			return fmt.Errorf("%s message with content", m.Kind)
		}
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	return nil
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type raw Message
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	dec := Message(r)
	if err := dec.Validate(); err != nil {
		return err
	}
	*m = dec
	return nil
}
