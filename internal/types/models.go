package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ID is an opaque dialog identifier. The chat source may send it as a JSON
// string or number; the raw token is kept so it is written back unchanged.
type ID json.RawMessage

// StringID builds an ID holding a JSON string.
func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID(b)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if len(id) == 0 {
		return []byte("null"), nil
	}
	return []byte(id), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	*id = append((*id)[:0], bytes.TrimSpace(b)...)
	return nil
}

// String returns the unquoted value for string ids and the literal otherwise.
func (id ID) String() string {
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}

// Message is the view of a chat message the pipeline needs. Only message and
// url are required; everything else the source sends is kept in the dialog's
// raw item, not here.
type Message struct {
	Speaker string `json:"speaker,omitempty"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Start   *int64 `json:"start,omitempty"`
	End     *int64 `json:"end,omitempty"`
}

// UnmarshalJSON never fails on field types. Non-string text fields keep their
// JSON literal and start/end stay nil unless they are integers.
func (m *Message) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*m = Message{
		Speaker: rawText(fields["speaker"]),
		Message: rawText(fields["message"]),
		URL:     rawText(fields["url"]),
		Start:   rawInt(fields["start"]),
		End:     rawInt(fields["end"]),
	}
	return nil
}

// HasURL reports whether the message carries an attachment or media link.
func (m Message) HasURL() bool {
	return m.URL != ""
}

// Dialog is one chat item. When decoded from JSON the original bytes are kept
// and written back verbatim, so fields the pipeline does not model survive.
type Dialog struct {
	ID       ID        `json:"id"`
	Messages []Message `json:"messages"`

	raw json.RawMessage
}

var errNullDialog = errors.New("dialog item is null")

func (d *Dialog) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return errNullDialog
	}
	var view struct {
		ID       ID                `json:"id"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(b, &view); err != nil {
		return err
	}
	msgs := make([]Message, 0, len(view.Messages))
	for i, rm := range view.Messages {
		var m Message
		if err := json.Unmarshal(rm, &m); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	*d = Dialog{ID: view.ID, Messages: msgs, raw: append(json.RawMessage(nil), b...)}
	return nil
}

func (d Dialog) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	type plain Dialog
	return json.Marshal(plain(d))
}

// HasMedia reports whether any message of the dialog links to media.
func (d Dialog) HasMedia() bool {
	for _, m := range d.Messages {
		if m.HasURL() {
			return true
		}
	}
	return false
}

// ChatsFile is the envelope used by the chat source and by chats.json.
type ChatsFile struct {
	Data []Dialog `json:"data"`
}

type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"message"`
	Start   int64  `json:"start"` // ms
	End     int64  `json:"end"`   // ms
}

type TranscriptionResult struct {
	ID         string      `json:"id"`
	Utterances []Utterance `json:"messages"`
}

type TranscriptsFile struct {
	Data []TranscriptionResult `json:"data"`
}

// AnalysisResult pairs a dialog with the JSON object returned by the model.
// Response is kept verbatim; its shape is owned by the rubric prompt.
type AnalysisResult struct {
	DialogID ID              `json:"dialog_id"`
	Response json.RawMessage `json:"gpt_response"`
}

func rawText(b json.RawMessage) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}

func rawInt(b json.RawMessage) *int64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return nil
	}
	return &n
}
