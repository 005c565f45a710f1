package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
)

const googleAPIBase = "https://generativelanguage.googleapis.com/v1beta"

func init() {
	Register(Google, Registration{
		DisplayName: "Google AI",
		KeyPrefix:   "AIza",
		Models:      []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-pro"},
		EnvKey:      "GEMINI_API_KEY",
		EnvBase:     "GEMINI_API_BASE",
		New:         func() Adapter { return googleAdapter{} },
	})
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
}

// googleAdapter speaks streamGenerateContent. The response is one bare JSON
// object per line with no prefix and no end sentinel; the key travels in
// the query string.
type googleAdapter struct{}

func (googleAdapter) Kind() Kind { return Google }

func (googleAdapter) Framing() Framing { return Framing{} }

func geminiRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

func (googleAdapter) BuildRequest(target Target, messages []Message, cfg GenerationConfig) (*HTTPRequest, error) {
	req := geminiRequest{
		Contents: make([]geminiContent, 0, len(messages)),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: cfg.MaxTokens,
			Temperature:     cfg.Temperature,
		},
	}
	for _, m := range messages {
		req.Contents = append(req.Contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if cfg.SystemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: cfg.SystemPrompt}}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal google request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?%s",
		baseURL(target.APIBase, googleAPIBase),
		url.PathEscape(target.Model),
		url.Values{"key": {target.APIKey}}.Encode(),
	)
	return &HTTPRequest{Endpoint: endpoint, Header: jsonHeader(), Body: body}, nil
}

// ParseFrame reads candidates[0].content.parts[0].text. Compact array
// punctuation around an object ("[{...}", ",{...}", "]") is tolerated.
func (googleAdapter) ParseFrame(payload []byte) (string, error) {
	payload = bytes.TrimSpace(payload)
	payload = bytes.TrimPrefix(payload, []byte("["))
	payload = bytes.TrimPrefix(payload, []byte(","))
	payload = bytes.TrimSuffix(payload, []byte("]"))
	payload = bytes.TrimSuffix(payload, []byte(","))
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return "", nil
	}

	if !gjson.ValidBytes(payload) {
		return "", malformed(Google, payload, "invalid JSON")
	}
	if e := gjson.GetBytes(payload, "error"); e.Exists() && e.IsObject() {
		return "", &APIError{Provider: Google, Type: e.Get("status").String(), Message: e.Get("message").String()}
	}
	return gjson.GetBytes(payload, "candidates.0.content.parts.0.text").String(), nil
}
