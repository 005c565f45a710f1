package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/linanwx/triptych/provider"
)

func collect(t *testing.T, ctx context.Context, r io.Reader, kind provider.Kind) ([]string, error) {
	t.Helper()
	adapter, err := provider.NewAdapter(kind)
	if err != nil {
		t.Fatalf("NewAdapter(%q) error = %v", kind, err)
	}
	var fragments []string
	for fragment, err := range Decode(ctx, r, adapter) {
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

const openAIFixture = "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
	"data: [DONE]\n\n"

const anthropicFixture = "event: message_start\n" +
	"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"role\":\"assistant\"}}\n\n" +
	"event: content_block_start\n" +
	"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
	"event: ping\n" +
	"data: {\"type\":\"ping\"}\n\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\" world\"}}\n\n" +
	"event: content_block_stop\n" +
	"data: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
	"event: message_stop\n" +
	"data: {\"type\":\"message_stop\"}\n\n"

const googleFixture = "{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}],\"role\":\"model\"}}]}\n" +
	"{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}],\"role\":\"model\"}}]}\n" +
	"\n" +
	"{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" world\"}],\"role\":\"model\"}}]}\n"

func TestDecodeVendorFixtures(t *testing.T) {
	tests := []struct {
		name    string
		kind    provider.Kind
		fixture string
	}{
		{name: "openai", kind: provider.OpenAI, fixture: openAIFixture},
		{name: "anthropic", kind: provider.Anthropic, fixture: anthropicFixture},
		{name: "google", kind: provider.Google, fixture: googleFixture},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragments, err := collect(t, context.Background(), strings.NewReader(tt.fixture), tt.kind)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			want := []string{"Hel", "lo", " world"}
			if strings.Join(fragments, "|") != strings.Join(want, "|") {
				t.Fatalf("fragments = %q, want %q", fragments, want)
			}
		})
	}
}

func TestDecodeReassemblesSplitReads(t *testing.T) {
	// One byte per read splits every frame across many reads.
	fragments, err := collect(t, context.Background(), iotest.OneByteReader(strings.NewReader(openAIFixture)), provider.OpenAI)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := strings.Join(fragments, ""); got != "Hello world" {
		t.Fatalf("joined fragments = %q, want %q", got, "Hello world")
	}
	if len(fragments) != 3 {
		t.Fatalf("fragments = %d, want 3", len(fragments))
	}
}

func TestDecodeSkipsMalformedFrame(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n" +
		"data: {this is not json\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n" +
		"data: [DONE]\n"

	fragments, err := collect(t, context.Background(), strings.NewReader(input), provider.OpenAI)
	if err != nil {
		t.Fatalf("Decode() error = %v, want malformed frame skipped", err)
	}
	if got := strings.Join(fragments, ""); got != "Hello world" {
		t.Fatalf("joined fragments = %q, want %q", got, "Hello world")
	}
}

func TestDecodeGoogleSkipsMalformedLine(t *testing.T) {
	input := "{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}]}\n" +
		"garbage\n" +
		"{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"b\"}]}}]}\n"
	fragments, err := collect(t, context.Background(), strings.NewReader(input), provider.Google)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if strings.Join(fragments, "") != "ab" {
		t.Fatalf("fragments = %q, want a and b", fragments)
	}
}

func TestDecodeDoneIsNotText(t *testing.T) {
	fragments, err := collect(t, context.Background(), strings.NewReader("data: [DONE]\n"), provider.OpenAI)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(fragments) != 0 {
		t.Fatalf("fragments = %q, want none", fragments)
	}
}

func TestDecodeInBandErrorEndsStream(t *testing.T) {
	input := "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"partial\"}}\n" +
		"data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"never\"}}\n"

	fragments, err := collect(t, context.Background(), strings.NewReader(input), provider.Anthropic)
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Decode() error = %v, want *provider.APIError", err)
	}
	if strings.Join(fragments, "") != "partial" {
		t.Fatalf("fragments = %q, want only the text before the error", fragments)
	}
}

func TestDecodeReadErrorIsTransportError(t *testing.T) {
	r := io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n"),
		iotest.ErrReader(errors.New("connection reset")),
	)
	fragments, err := collect(t, context.Background(), r, provider.OpenAI)
	var terr *provider.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Decode() error = %v, want *provider.TransportError", err)
	}
	if len(fragments) != 1 || fragments[0] != "Hi" {
		t.Fatalf("fragments = %q, want [Hi]", fragments)
	}
}

func TestDecodeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter, _ := provider.NewAdapter(provider.OpenAI)

	var (
		fragments []string
		gotErr    error
	)
	for fragment, err := range Decode(ctx, strings.NewReader(openAIFixture), adapter) {
		if err != nil {
			gotErr = err
			break
		}
		fragments = append(fragments, fragment)
		cancel()
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", gotErr)
	}
	if len(fragments) != 1 {
		t.Fatalf("fragments = %q, want exactly one before cancellation", fragments)
	}
}

func TestDecodeIsSingleUse(t *testing.T) {
	adapter, _ := provider.NewAdapter(provider.OpenAI)
	seq := Decode(context.Background(), strings.NewReader(openAIFixture), adapter)

	n := 0
	for _, err := range seq {
		if err != nil {
			t.Fatalf("first range error = %v", err)
		}
		n++
	}
	if n != 3 {
		t.Fatalf("first range yielded %d fragments, want 3", n)
	}

	var second error
	for _, err := range seq {
		second = err
	}
	if !errors.Is(second, ErrConsumed) {
		t.Fatalf("second range error = %v, want ErrConsumed", second)
	}
}

func TestDecodeLongFrame(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"" + long + "\"}}]}\n"
	fragments, err := collect(t, context.Background(), strings.NewReader(input), provider.OpenAI)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(fragments) != 1 || len(fragments[0]) != len(long) {
		t.Fatalf("long frame not decoded intact")
	}
}
