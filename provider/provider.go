// Package provider defines the vendor-neutral message model and the closed
// set of vendor adapters that translate it to and from each wire format.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind identifies a vendor adapter.
type Kind string

const (
	OpenAI    Kind = "openai"
	Anthropic Kind = "anthropic"
	Google    Kind = "google"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a conversation log. Messages are treated as
// immutable once appended to a log.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// GenerationConfig holds per-panel sampling parameters. It is copied into
// every request.
type GenerationConfig struct {
	MaxTokens    int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	SystemPrompt string  `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
}

// Validate checks the ranges accepted by all three vendors.
func (c GenerationConfig) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("maxTokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < MinTemperature || c.Temperature > MaxTemperature {
		return fmt.Errorf("temperature must be within [%g, %g], got %g", MinTemperature, MaxTemperature, c.Temperature)
	}
	return nil
}

// Target is where and as whom a request is sent.
type Target struct {
	APIKey  string
	APIBase string // optional; the adapter default is used when empty
	Model   string
}

// HTTPRequest is the transport-neutral result of BuildRequest.
type HTTPRequest struct {
	Endpoint string
	Header   http.Header
	Body     []byte
}

// Framing describes how a vendor splits its incremental response into frames.
// All supported vendors are newline delimited.
type Framing struct {
	// DataPrefix, when set, must be stripped from a line before it is a frame;
	// lines without it are not frames.
	DataPrefix string
	// DoneSentinel is a payload that marks normal end of stream and carries
	// no text.
	DoneSentinel string
}

// Adapter is implemented once per vendor. Adding a vendor means adding an
// Adapter and registering it; nothing else changes.
type Adapter interface {
	Kind() Kind
	Framing() Framing
	// BuildRequest encodes messages and config into the vendor's streaming
	// request.
	BuildRequest(target Target, messages []Message, cfg GenerationConfig) (*HTTPRequest, error)
	// ParseFrame decodes one frame payload. It returns "" with a nil error for
	// frames that carry no text, an error wrapping ErrMalformedFrame for
	// frames that cannot be decoded, and an *APIError for in-band vendor
	// failures.
	ParseFrame(payload []byte) (string, error)
}

// Registration describes a vendor: its adapter plus the catalog data the
// configuration layer needs.
type Registration struct {
	DisplayName string
	KeyPrefix   string
	Models      []string // first entry is the default model
	EnvKey      string
	EnvBase     string
	New         func() Adapter
}

var registry = map[Kind]Registration{}

// Register adds a vendor. It is called from init in each adapter file.
func Register(kind Kind, reg Registration) {
	if kind == "" || reg.New == nil {
		return
	}
	models := make([]string, 0, len(reg.Models))
	for _, m := range reg.Models {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	reg.Models = models
	registry[kind] = reg
}

// Lookup returns the registration for kind.
func Lookup(kind Kind) (Registration, bool) {
	reg, ok := registry[kind]
	return reg, ok
}

// NewAdapter returns a fresh adapter for kind.
func NewAdapter(kind Kind) (Adapter, error) {
	reg, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %q", kind)
	}
	return reg.New(), nil
}

// ParseKind normalizes a user supplied provider name.
func ParseKind(name string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := registry[kind]; !ok {
		return "", fmt.Errorf("unknown provider: %q (supported: %s)", name, strings.Join(kindNames(), ", "))
	}
	return kind, nil
}

// SupportedProviders returns all registered kinds in sorted order.
func SupportedProviders() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func kindNames() []string {
	kinds := SupportedProviders()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

// SupportedModelsForProvider returns the model catalog for kind.
func SupportedModelsForProvider(kind Kind) []string {
	reg, ok := registry[kind]
	if !ok {
		return nil
	}
	out := make([]string, len(reg.Models))
	copy(out, reg.Models)
	return out
}

// DefaultModel returns the first catalog entry for kind, or "".
func DefaultModel(kind Kind) string {
	if models := SupportedModelsForProvider(kind); len(models) > 0 {
		return models[0]
	}
	return ""
}

// IsCatalogModel reports whether model is listed for kind.
func IsCatalogModel(kind Kind, model string) bool {
	for _, m := range SupportedModelsForProvider(kind) {
		if m == model {
			return true
		}
	}
	return false
}

// ErrUnknownKey is returned when no vendor claims an API key.
var ErrUnknownKey = errors.New("unrecognized API key format")

// DetectProvider classifies an API key by prefix. Prefixes are compared
// longest first, so a key matching several prefixes ("sk-ant-" and "sk-")
// goes to the most specific vendor regardless of registration order.
func DetectProvider(apiKey string) (Kind, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrUnknownKey
	}

	type rule struct {
		prefix string
		kind   Kind
	}
	rules := make([]rule, 0, len(registry))
	for kind, reg := range registry {
		if reg.KeyPrefix != "" {
			rules = append(rules, rule{prefix: reg.KeyPrefix, kind: kind})
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].prefix) != len(rules[j].prefix) {
			return len(rules[i].prefix) > len(rules[j].prefix)
		}
		return rules[i].prefix < rules[j].prefix
	})

	for _, r := range rules {
		if strings.HasPrefix(apiKey, r.prefix) {
			return r.kind, nil
		}
	}
	return "", ErrUnknownKey
}

func baseURL(configured, fallback string) string {
	base := strings.TrimSpace(configured)
	if base == "" {
		base = fallback
	}
	return strings.TrimRight(base, "/")
}

func jsonHeader() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}
