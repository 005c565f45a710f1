package provider

import (
	"encoding/json"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const openAIAPIBase = "https://api.openai.com/v1"

func init() {
	Register(OpenAI, Registration{
		DisplayName: "OpenAI",
		KeyPrefix:   "sk-",
		Models:      []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
		EnvKey:      "OPENAI_API_KEY",
		EnvBase:     "OPENAI_API_BASE",
		New:         func() Adapter { return openAIAdapter{} },
	})
}

// openAIAdapter speaks the Chat Completions API. Frames are SSE "data:" lines
// terminated by "data: [DONE]".
type openAIAdapter struct{}

func (openAIAdapter) Kind() Kind { return OpenAI }

func (openAIAdapter) Framing() Framing {
	return Framing{DataPrefix: "data:", DoneSentinel: "[DONE]"}
}

// BuildRequest passes messages through in order; a configured system prompt
// is prepended as a system message.
func (openAIAdapter) BuildRequest(target Target, messages []Message, cfg GenerationConfig) (*HTTPRequest, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if cfg.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(cfg.SystemPrompt))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(target.Model),
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(cfg.MaxTokens)),
		Temperature: openai.Float(cfg.Temperature),
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}
	body, err = sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("set stream flag: %w", err)
	}

	header := jsonHeader()
	header.Set("Accept", "text/event-stream")
	header.Set("Authorization", "Bearer "+target.APIKey)

	return &HTTPRequest{
		Endpoint: baseURL(target.APIBase, openAIAPIBase) + "/chat/completions",
		Header:   header,
		Body:     body,
	}, nil
}

// ParseFrame reads choices[0].delta.content.
func (openAIAdapter) ParseFrame(payload []byte) (string, error) {
	if !gjson.ValidBytes(payload) {
		return "", malformed(OpenAI, payload, "invalid JSON")
	}
	if e := gjson.GetBytes(payload, "error"); e.Exists() && e.IsObject() {
		return "", &APIError{Provider: OpenAI, Type: e.Get("type").String(), Message: e.Get("message").String()}
	}
	return gjson.GetBytes(payload, "choices.0.delta.content").String(), nil
}
