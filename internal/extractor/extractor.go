// Package extractor turns a dialog into a rubric completion request and the
// model's answer into a validated JSON object.
package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dialog-insights-go/internal/llm"
	"dialog-insights-go/internal/types"
)

const DefaultMaxTokens = 2000

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrNotObject     = errors.New("model response is not a JSON object")
)

// BuildMessages returns the rubric followed by every dialog message as a user
// turn, in dialog order.
func BuildMessages(d types.Dialog) []llm.Message {
	msgs := make([]llm.Message, 0, len(d.Messages)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt})
	for _, m := range d.Messages {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: m.Message})
	}
	return msgs
}

// BuildRequest uses deterministic sampling. maxTokens <= 0 means DefaultMaxTokens.
func BuildRequest(model string, maxTokens int, d types.Dialog) llm.CompletionRequest {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return llm.CompletionRequest{
		Model:     model,
		Messages:  BuildMessages(d),
		MaxTokens: maxTokens,
	}
}

// ParseResponse drops line breaks and markdown fences from the model text and
// returns it as raw JSON if it is a single object.
func ParseResponse(text string) (json.RawMessage, error) {
	s := strings.NewReplacer("\r", "", "\n", "").Replace(text)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	if s == "" {
		return nil, ErrEmptyResponse
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("invalid JSON in model response: %q", truncate(s, 120))
	}
	if !strings.HasPrefix(s, "{") {
		return nil, ErrNotObject
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
