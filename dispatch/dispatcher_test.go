package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linanwx/triptych/bus"
	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/session"
)

func openAIServer(t *testing.T, fragments ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range fragments {
			_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"`+f+`"}}]}`+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

func anthropicServer(t *testing.T, fragments ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		for _, f := range fragments {
			_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\""+f+"\"}}\n\n")
		}
		_, _ = io.WriteString(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

func failingServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func configure(t *testing.T, mgr *session.Manager, slot int, kind provider.Kind, base string) {
	t.Helper()
	_, err := mgr.Configure(slot, session.Config{
		Provider:   kind,
		APIKey:     "test-key",
		APIBase:    base,
		Model:      "test-model",
		Generation: provider.GenerationConfig{MaxTokens: 100, Temperature: 0.5},
	})
	if err != nil {
		t.Fatalf("Configure(%d) error = %v", slot, err)
	}
}

func lastMessage(t *testing.T, mgr *session.Manager, slot int) provider.Message {
	t.Helper()
	s, ok := mgr.Get(slot)
	if !ok {
		t.Fatalf("slot %d is empty", slot)
	}
	msgs := s.Messages()
	if len(msgs) == 0 {
		t.Fatalf("slot %d log is empty", slot)
	}
	return msgs[len(msgs)-1]
}

func TestSendTurnIsolatesFailures(t *testing.T) {
	mgr := session.NewManager()
	configure(t, mgr, 1, provider.OpenAI, openAIServer(t, "Hel", "lo").URL)
	configure(t, mgr, 2, provider.Google, failingServer(t, http.StatusInternalServerError, `{"error":{"code":500,"message":"backend unavailable"}}`).URL)
	configure(t, mgr, 3, provider.Anthropic, anthropicServer(t, "Hi", " there").URL)

	d := New(mgr, provider.NewClient(5*time.Second), nil)
	report, err := d.SendTurn(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}

	if len(report.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(report.Results))
	}
	if report.Failed() != 1 {
		t.Fatalf("Failed() = %d, want 1", report.Failed())
	}

	want := map[int]string{1: "Hello", 3: "Hi there"}
	for slot, reply := range want {
		res := report.Results[slot-1]
		if res.State != session.StateCompleted || res.Err != nil {
			t.Fatalf("slot %d result = %+v, want completed", slot, res)
		}
		if got := lastMessage(t, mgr, slot); got != provider.AssistantMessage(reply) {
			t.Fatalf("slot %d last message = %+v, want %q", slot, got, reply)
		}
	}

	failed := report.Results[1]
	var terr *provider.TransportError
	if failed.State != session.StateFailed || !errors.As(failed.Err, &terr) {
		t.Fatalf("slot 2 result = %+v, want failed with transport error", failed)
	}
	if terr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("slot 2 status = %d", terr.StatusCode)
	}

	s2, _ := mgr.Get(2)
	msgs := s2.Messages()
	if len(msgs) != 2 || !strings.HasPrefix(msgs[1].Content, "Error: ") {
		t.Fatalf("slot 2 log = %+v, want user message plus one error", msgs)
	}

	for _, s := range mgr.Active() {
		users := 0
		for _, m := range s.Messages() {
			if m.Role == provider.RoleUser && m.Content == "hello" {
				users++
			}
		}
		if users != 1 {
			t.Fatalf("slot %d has %d copies of the user message, want 1", s.Slot(), users)
		}
		if s.State() != session.StateIdle {
			t.Fatalf("slot %d state = %s after turn, want idle", s.Slot(), s.State())
		}
	}
}

func TestSendTurnSendsHistory(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	mgr := session.NewManager()
	configure(t, mgr, 1, provider.OpenAI, server.URL)
	d := New(mgr, provider.NewClient(5*time.Second), nil)

	for _, text := range []string{"first", "second"} {
		if _, err := d.SendTurn(context.Background(), text); err != nil {
			t.Fatalf("SendTurn(%q) error = %v", text, err)
		}
	}

	if len(bodies) != 2 {
		t.Fatalf("requests = %d, want 2", len(bodies))
	}
	second := bodies[1]
	for _, want := range []string{`"first"`, `"ok"`, `"second"`} {
		if !strings.Contains(second, want) {
			t.Fatalf("second request body %s is missing %s", second, want)
		}
	}
}

func TestSendTurnRejectsConcurrentTurn(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"done\"}}]}\n\n")
	}))
	defer server.Close()

	mgr := session.NewManager()
	configure(t, mgr, 1, provider.OpenAI, server.URL)
	d := New(mgr, provider.NewClient(5*time.Second), nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := d.SendTurn(context.Background(), "first")
		errCh <- err
	}()
	<-started

	if !d.InFlight() {
		t.Fatal("InFlight() = false while a turn is running")
	}
	if _, err := d.SendTurn(context.Background(), "second"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("concurrent SendTurn() error = %v, want ErrTurnInFlight", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first SendTurn() error = %v", err)
	}

	s, _ := mgr.Get(1)
	for _, m := range s.Messages() {
		if m.Content == "second" {
			t.Fatal("rejected turn reached the log")
		}
	}
}

func TestSendTurnPreconditions(t *testing.T) {
	d := New(session.NewManager(), provider.NewClient(time.Second), nil)
	if _, err := d.SendTurn(context.Background(), "hi"); !errors.Is(err, ErrNoSessions) {
		t.Fatalf("SendTurn() with no panels error = %v, want ErrNoSessions", err)
	}

	mgr := session.NewManager()
	configure(t, mgr, 1, provider.OpenAI, "http://127.0.0.1:1")
	d = New(mgr, provider.NewClient(time.Second), nil)
	for _, text := range []string{"", "   \n\t"} {
		if _, err := d.SendTurn(context.Background(), text); !errors.Is(err, ErrEmptyTurn) {
			t.Fatalf("SendTurn(%q) error = %v, want ErrEmptyTurn", text, err)
		}
	}
	s, _ := mgr.Get(1)
	if len(s.Messages()) != 0 {
		t.Fatalf("rejected turn changed the log: %+v", s.Messages())
	}
}

func TestSendTurnCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"part\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	mgr := session.NewManager()
	configure(t, mgr, 1, provider.OpenAI, server.URL)

	events := bus.NewBus(64)
	defer events.Close()
	ctx, cancel := context.WithCancel(context.Background())
	events.Subscribe(bus.EventSessionSnapshot, func(_ context.Context, e *bus.Event) {
		var snap session.Snapshot
		if err := e.ParseData(&snap); err == nil && len(snap.Messages) == 2 {
			cancel()
		}
	})

	d := New(mgr, provider.NewClient(0), events)
	report, err := d.SendTurn(ctx, "go")
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	res := report.Results[0]
	if res.State != session.StateFailed || res.Reply != "part" {
		t.Fatalf("result = %+v, want failed with partial reply", res)
	}

	s, _ := mgr.Get(1)
	msgs := s.Messages()
	if len(msgs) != 3 || msgs[1].Content != "part" || !strings.HasPrefix(msgs[2].Content, "Error: ") {
		t.Fatalf("log = %+v, want user, partial reply, error", msgs)
	}
}

func TestSendTurnPublishesLifecycle(t *testing.T) {
	mgr := session.NewManager()
	configure(t, mgr, 1, provider.OpenAI, openAIServer(t, "a", "b").URL)

	events := bus.NewBus(64)
	defer events.Close()

	var (
		mu    sync.Mutex
		types []bus.EventType
	)
	events.Subscribe("", func(_ context.Context, e *bus.Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})

	d := New(mgr, provider.NewClient(5*time.Second), events)
	if _, err := d.SendTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	events.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(types) < 4 {
		t.Fatalf("events = %v, want a full lifecycle", types)
	}
	if types[0] != bus.EventSessionSnapshot || types[1] != bus.EventTurnStarted {
		t.Fatalf("events start with %v, want snapshot then turn.started", types[:2])
	}
	if types[len(types)-1] != bus.EventTurnCompleted || types[len(types)-2] != bus.EventSessionSettled {
		t.Fatalf("events end with %v, want settled then turn.completed", types[len(types)-2:])
	}
}
