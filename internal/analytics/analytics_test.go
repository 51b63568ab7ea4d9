package analytics

import (
	"context"
	"errors"
	"testing"

	"freedesk/services/support/internal/ai"
)

type stubChatClient struct {
	response string
	err      error
	calls    int
}

func (s *stubChatClient) Chat(_ context.Context, _ []ai.Turn, _ ai.ChatOptions) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestAnalyzeSkipsTrivialMessages(t *testing.T) {
	for _, message := range []string{"ok", "OK", "Merci", "oui", "non", "d'accord", "hm"} {
		client := &stubChatClient{response: `{"sentiment":"negative"}`}
		analyzer := NewAnalyzer(client)

		record := analyzer.Analyze(context.Background(), []ai.Turn{{Role: "user", Content: message}})
		if client.calls != 0 {
			t.Fatalf("message %q must not trigger a model call", message)
		}
		if record.Sentiment != "neutral" || record.Category != "other" || record.Urgency != "medium" {
			t.Fatalf("message %q must yield the default record, got %+v", message, record)
		}
	}
}

func TestAnalyzeParsesFencedResponse(t *testing.T) {
	client := &stubChatClient{response: "```json\n{\"sentiment\":\"negative\",\"category\":\"billing\",\"urgency\":\"high\",\"churn_risk\":85,\"summary\":\"billing error of 49 euros\",\"next_action\":\"check invoice\"}\n```"}
	analyzer := NewAnalyzer(client)

	record := analyzer.Analyze(context.Background(), []ai.Turn{
		{Role: "user", Content: "ma facture est fausse, 49 euros en trop"},
	})

	if record.Sentiment != "negative" || record.Category != "billing" || record.Urgency != "high" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.ChurnRisk != 85 {
		t.Fatalf("expected churn risk 85, got %d", record.ChurnRisk)
	}
	if !record.RetentionAlert {
		t.Fatal("churn risk above 80 must set the retention alert flag")
	}
}

func TestAnalyzeClampsChurnRisk(t *testing.T) {
	cases := map[string]int{
		`{"churn_risk":-20}`:  0,
		`{"churn_risk":350}`:  100,
		`{"churn_risk":42.7}`: 42,
		`{"churn_risk":"x"}`:  0,
	}

	for body, want := range cases {
		analyzer := NewAnalyzer(&stubChatClient{response: body})
		record := analyzer.Analyze(context.Background(), []ai.Turn{
			{Role: "user", Content: "mon abonnement ne fonctionne plus depuis hier"},
		})
		if record.ChurnRisk != want {
			t.Fatalf("body %s: expected churn risk %d, got %d", body, want, record.ChurnRisk)
		}
	}
}

func TestAnalyzeDefaultsOnCallFailure(t *testing.T) {
	analyzer := NewAnalyzer(&stubChatClient{err: errors.New("upstream down")})

	record := analyzer.Analyze(context.Background(), []ai.Turn{
		{Role: "user", Content: "rien ne marche, je veux resilier"},
	})
	if record.Sentiment != "neutral" || record.ChurnRisk != 0 {
		t.Fatalf("call failure must yield the default record, got %+v", record)
	}
	if record.RetentionAlert {
		t.Fatal("default record must not carry a retention alert")
	}
}

func TestAnalyzeDefaultsOnGarbageResponse(t *testing.T) {
	analyzer := NewAnalyzer(&stubChatClient{response: "sorry, I cannot answer that"})

	record := analyzer.Analyze(context.Background(), []ai.Turn{
		{Role: "user", Content: "probleme de connexion depuis trois jours"},
	})
	if record.Summary != "awaiting analysis" || record.NextAction != "review ticket" {
		t.Fatalf("garbage response must yield the default record, got %+v", record)
	}
}

func TestAnalyzeTruncatesLongFields(t *testing.T) {
	long := make([]rune, 0, 150)
	for i := 0; i < 150; i++ {
		long = append(long, 'é')
	}
	analyzer := NewAnalyzer(&stubChatClient{
		response: `{"sentiment":"negative","summary":"` + string(long) + `"}`,
	})

	record := analyzer.Analyze(context.Background(), []ai.Turn{
		{Role: "user", Content: "une panne totale de la ligne"},
	})
	if got := len([]rune(record.Summary)); got != 100 {
		t.Fatalf("expected summary truncated to 100 runes, got %d", got)
	}
}

func TestAnalyzeWithoutClient(t *testing.T) {
	analyzer := NewAnalyzer(nil)
	record := analyzer.Analyze(context.Background(), []ai.Turn{
		{Role: "user", Content: "une vraie question assez longue"},
	})
	if record.Sentiment != "neutral" {
		t.Fatalf("nil client must yield the default record, got %+v", record)
	}
}
