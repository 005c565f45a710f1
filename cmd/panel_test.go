package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/session"
)

func TestParseSlot(t *testing.T) {
	tests := []struct {
		arg     string
		want    int
		wantErr bool
	}{
		{arg: "1", want: 1},
		{arg: " 3 ", want: 3},
		{arg: "0", wantErr: true},
		{arg: "4", wantErr: true},
		{arg: "two", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseSlot(tt.arg)
		if tt.wantErr {
			if !errors.Is(err, session.ErrSlotOutOfRange) {
				t.Fatalf("parseSlot(%q) error = %v, want ErrSlotOutOfRange", tt.arg, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("parseSlot(%q) = %d, %v, want %d", tt.arg, got, err, tt.want)
		}
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "", want: "(none)"},
		{key: "sk-short", want: "********"},
		{key: "sk-ant-api03-abcdef1234", want: "sk-ant...1234"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Fatalf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestBuildModelOptionsMarksDefault(t *testing.T) {
	models := provider.SupportedModelsForProvider(provider.Anthropic)
	options := buildModelOptions(provider.Anthropic)
	if len(options) != len(models) {
		t.Fatalf("options = %d, want %d", len(options), len(models))
	}
	if !strings.HasSuffix(options[0].Key, "[default]") || options[0].Value != models[0] {
		t.Fatalf("first option = %+v", options[0])
	}
	for _, opt := range options[1:] {
		if strings.Contains(opt.Key, "[default]") {
			t.Fatalf("only the first model is the default, got %q", opt.Key)
		}
	}
}
