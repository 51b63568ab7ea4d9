package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"freedesk/services/support/internal/ai"
	"freedesk/services/support/internal/analytics"
	"freedesk/services/support/internal/exports"
	"freedesk/services/support/internal/hub"
	"freedesk/services/support/internal/queue"
	"freedesk/services/support/internal/store"
)

type stubChat struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
	after func()
}

func (s *stubChat) Chat(ctx context.Context, turns []ai.Turn, opts ai.ChatOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls += 1
	if s.after != nil {
		s.after()
	}
	return s.reply, s.err
}

type stubAnalyzer struct {
	mu     sync.Mutex
	calls  int
	record analytics.Record
	after  func()
}

func (s *stubAnalyzer) Analyze(ctx context.Context, turns []ai.Turn) analytics.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls += 1
	if s.after != nil {
		s.after()
	}
	return s.record
}

type stubMatcher struct {
	mu    sync.Mutex
	calls int
	reply string
	match bool
	after func()
}

func (s *stubMatcher) Match(message string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls += 1
	if s.after != nil {
		s.after()
	}
	return s.reply, s.match
}

type recordingProducer struct {
	mu     sync.Mutex
	alerts []queue.RetentionAlert
	err    error
}

func (p *recordingProducer) EnqueueRetentionAlert(_ context.Context, alert queue.RetentionAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return p.err
}

func (p *recordingProducer) Close() error {
	return nil
}

func newFlowHandler(chat ChatClient, analyzer TicketAnalyzer, replies ReplyMatcher, alerts queue.Producer) *Handler {
	return NewHandler(
		store.NewMemory(),
		chat,
		analyzer,
		replies,
		hub.New(),
		alerts,
		exports.NewNoopArchive(),
		[]string{"*"},
		"agent-key",
		0,
		0,
	)
}

func TestSupportFlowCollaboratorOrder(t *testing.T) {
	order := []string{}
	matcher := &stubMatcher{after: func() { order = append(order, "matcher") }}
	analyzer := &stubAnalyzer{after: func() { order = append(order, "analyzer") }}
	chat := &stubChat{reply: "Voici la marche a suivre.", after: func() { order = append(order, "chat") }}

	handler := newFlowHandler(chat, analyzer, matcher, &recordingProducer{})
	result := handler.runSupportFlow(context.Background(), "FRE-TEST", []store.Message{
		{Role: store.RoleUser, Content: "mon internet ne fonctionne plus depuis hier"},
	})

	want := []string{"matcher", "analyzer", "chat"}
	if len(order) != len(want) {
		t.Fatalf("expected collaborator order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected collaborator order %v, got %v", want, order)
		}
	}

	if !strings.HasSuffix(result.reply, "-- Agent Freedesk") {
		t.Fatalf("reply should carry the agent signature, got %q", result.reply)
	}
	if result.analytics == nil {
		t.Fatal("expected analytics record")
	}
}

func TestSupportFlowCannedReplySkipsUpstream(t *testing.T) {
	matcher := &stubMatcher{reply: "Bonjour ! Comment puis-je vous aider ?", match: true}
	analyzer := &stubAnalyzer{}
	chat := &stubChat{reply: "should not be used"}

	handler := newFlowHandler(chat, analyzer, matcher, &recordingProducer{})
	result := handler.runSupportFlow(context.Background(), "FRE-TEST", []store.Message{
		{Role: store.RoleUser, Content: "bonjour"},
	})

	if result.reply != matcher.reply {
		t.Fatalf("expected canned reply, got %q", result.reply)
	}
	if analyzer.calls != 0 {
		t.Fatalf("analytics should be skipped on canned match, called %d times", analyzer.calls)
	}
	if chat.calls != 0 {
		t.Fatalf("chat should be skipped on canned match, called %d times", chat.calls)
	}
	if result.analytics != nil {
		t.Fatal("canned match should not produce analytics")
	}
}

func TestSupportFlowDegradesOnChatError(t *testing.T) {
	matcher := &stubMatcher{}
	analyzer := &stubAnalyzer{record: analytics.Record{Sentiment: "negative"}}
	chat := &stubChat{err: errors.New("upstream rejected the request")}

	handler := newFlowHandler(chat, analyzer, matcher, &recordingProducer{})
	result := handler.runSupportFlow(context.Background(), "FRE-TEST", []store.Message{
		{Role: store.RoleUser, Content: "rien ne marche et personne ne repond"},
	})

	if result.reply != degradedReply {
		t.Fatalf("expected degraded copy, got %q", result.reply)
	}
	if result.analytics == nil || result.analytics.Sentiment != "negative" {
		t.Fatalf("analytics should survive a chat failure: %+v", result.analytics)
	}
}

func TestSupportFlowNilChatDegrades(t *testing.T) {
	handler := newFlowHandler(nil, &stubAnalyzer{}, &stubMatcher{}, &recordingProducer{})
	result := handler.runSupportFlow(context.Background(), "FRE-TEST", []store.Message{
		{Role: store.RoleUser, Content: "pouvez-vous verifier ma ligne"},
	})

	if result.reply != degradedReply {
		t.Fatalf("expected degraded copy without a chat client, got %q", result.reply)
	}
}

func TestSupportFlowEnqueuesRetentionAlert(t *testing.T) {
	producer := &recordingProducer{}
	analyzer := &stubAnalyzer{record: analytics.Record{
		ChurnRisk:      92,
		Summary:        "client menace de partir",
		RetentionAlert: true,
	}}

	handler := newFlowHandler(&stubChat{reply: "ok"}, analyzer, &stubMatcher{}, producer)
	handler.runSupportFlow(context.Background(), "FRE-CHURN", []store.Message{
		{Role: store.RoleUser, Content: "je vais resilier mon abonnement immediatement"},
	})

	if len(producer.alerts) != 1 {
		t.Fatalf("expected one retention alert, got %d", len(producer.alerts))
	}
	alert := producer.alerts[0]
	if alert.TicketID != "FRE-CHURN" || alert.ChurnRisk != 92 {
		t.Fatalf("unexpected alert: %+v", alert)
	}
}

func TestSupportFlowSkipsInternalNotesInTurns(t *testing.T) {
	turns := chatTurns([]store.Message{
		{Role: store.RoleUser, Content: "bonjour"},
		{Role: store.RoleAgent, Content: "note interne", Internal: true},
		{Role: store.RoleAgent, Content: "on s'en occupe"},
	})

	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[1].Role != "assistant" {
		t.Fatalf("agent messages map to assistant turns, got %q", turns[1].Role)
	}
}

func TestNormalizeAgentSignature(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Bonjour", "Bonjour\n-- Agent Freedesk"},
		{"Bonjour\n-- Agent Freedesk", "Bonjour\n-- Agent Freedesk"},
		{"Bonjour  \n", "Bonjour\n-- Agent Freedesk"},
	}
	for _, tc := range cases {
		if got := normalizeAgentSignature(tc.in); got != tc.want {
			t.Fatalf("normalizeAgentSignature(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
