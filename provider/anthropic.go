package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	anthropicAPIBase    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"

	anthropicContentDelta = "content_block_delta"
)

func init() {
	Register(Anthropic, Registration{
		DisplayName: "Anthropic",
		KeyPrefix:   "sk-ant-",
		Models: []string{
			"claude-3-5-sonnet-latest",
			"claude-3-opus-20240229",
			"claude-3-sonnet-20240229",
			"claude-3-haiku-20240307",
		},
		EnvKey:  "ANTHROPIC_API_KEY",
		EnvBase: "ANTHROPIC_API_BASE",
		New:     func() Adapter { return anthropicAdapter{} },
	})
}

// anthropicAdapter speaks the Messages API. Frames are SSE "data:" lines;
// only content_block_delta events carry text.
type anthropicAdapter struct{}

func (anthropicAdapter) Kind() Kind { return Anthropic }

func (anthropicAdapter) Framing() Framing {
	return Framing{DataPrefix: "data:"}
}

// BuildRequest keeps the conversation as-is and sends the system prompt in
// the top-level system field.
func (anthropicAdapter) BuildRequest(target Target, messages []Message, cfg GenerationConfig) (*HTTPRequest, error) {
	var system []string
	if cfg.SystemPrompt != "" {
		system = append(system, cfg.SystemPrompt)
	}

	msgs := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			// The Messages API rejects system-role turns.
			system = append(system, m.Content)
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(target.Model),
		MaxTokens:   int64(cfg.MaxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(cfg.Temperature),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}
	body, err = sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("set stream flag: %w", err)
	}

	header := jsonHeader()
	header.Set("Accept", "text/event-stream")
	header.Set("x-api-key", target.APIKey)
	header.Set("anthropic-version", anthropicAPIVersion)

	return &HTTPRequest{
		Endpoint: baseURL(target.APIBase, anthropicAPIBase) + "/v1/messages",
		Header:   header,
		Body:     body,
	}, nil
}

// ParseFrame returns delta.text for content_block_delta events and ignores
// every other event type.
func (anthropicAdapter) ParseFrame(payload []byte) (string, error) {
	if !gjson.ValidBytes(payload) {
		return "", malformed(Anthropic, payload, "invalid JSON")
	}
	switch gjson.GetBytes(payload, "type").String() {
	case anthropicContentDelta:
		return gjson.GetBytes(payload, "delta.text").String(), nil
	case "error":
		return "", &APIError{
			Provider: Anthropic,
			Type:     gjson.GetBytes(payload, "error.type").String(),
			Message:  gjson.GetBytes(payload, "error.message").String(),
		}
	default:
		return "", nil
	}
}
