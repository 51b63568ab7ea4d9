package ai

import (
	"encoding/json"
	"strings"
)

type completionBody struct {
	Choices []completionChoice `json:"choices"`
}

type completionChoice struct {
	Message *completionMessage `json:"message"`
	Text    string             `json:"text"`
	Content string             `json:"content"`
}

type completionMessage struct {
	Content json.RawMessage `json:"content"`
	Text    string          `json:"text"`
}

// extractText pulls the assistant text out of a completion response. The
// message content arrives either as a plain string or as an object with a
// text field depending on the provider; anything unrecognized degrades to
// the raw body instead of failing.
func extractText(body []byte) string {
	parsed := completionBody{}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Choices) > 0 {
		first := parsed.Choices[0]
		if first.Message != nil {
			if text, ok := decodeMessageContent(first.Message.Content); ok {
				return text
			}
			if first.Message.Text != "" {
				return strings.TrimSpace(first.Message.Text)
			}
		}
		if first.Text != "" {
			return strings.TrimSpace(first.Text)
		}
		if first.Content != "" {
			return strings.TrimSpace(first.Content)
		}
	}

	return strings.TrimSpace(string(body))
}

func decodeMessageContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		if trimmed := strings.TrimSpace(plain); trimmed != "" {
			return trimmed, true
		}
		return "", false
	}

	structured := struct {
		Text string `json:"text"`
	}{}
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Text != "" {
		return strings.TrimSpace(structured.Text), true
	}

	return "", false
}
