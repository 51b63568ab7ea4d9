// Package analytics derives sentiment and urgency indicators from ticket
// conversations. It degrades to a neutral default record on every failure:
// analysis is advisory and must never block the ticket flow.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"freedesk/services/support/internal/ai"
)

const (
	analysisTemperature = 0.1
	analysisMaxTokens   = 300
	contextTurns        = 5
	fieldLimit          = 100
	alertChurnRisk      = 80
	minMessageRunes     = 5
)

// trivial acknowledgements that are never worth a model call
var trivialMessages = map[string]struct{}{
	"ok":       {},
	"merci":    {},
	"d'accord": {},
	"non":      {},
	"oui":      {},
}

var (
	codeFenceRegex = regexp.MustCompile("```json\\s*|\\s*```")
	jsonBlockRegex = regexp.MustCompile(`(?s)\{.*\}`)
)

const analysisPrompt = `You are a customer-support analyst.

TASK: analyze the conversation below and extract key indicators.

CONVERSATION:
%s

EXPECTED RESPONSE FORMAT (JSON ONLY):
{
  "sentiment": "positive" | "neutral" | "negative",
  "category": "billing" | "technical" | "sales" | "cancellation" | "other",
  "urgency": "low" | "medium" | "high",
  "churn_risk": 0 to 100 (probability the customer leaves),
  "summary": "precise summary of the problem (max 15 words)",
  "next_action": "recommended action for the agent"
}

STRICT CRITERIA:
- Sentiment: never "neutral" when the customer reports a problem; use
  "negative" for any problem, "positive" for thanks.
- Summary: never a generic "support request"; be specific.
- Churn risk: above 80 on any mention of cancellation, a competitor, or
  pricing complaints.
- Urgency: "high" for a full outage, a blocking issue, or high churn risk.

ANSWER WITH THE JSON ONLY.`

// Record is the guaranteed-shape analysis result attached to a ticket.
type Record struct {
	Sentiment      string    `json:"sentiment"`
	Category       string    `json:"category"`
	Urgency        string    `json:"urgency"`
	ChurnRisk      int       `json:"churnRisk"`
	Summary        string    `json:"summary"`
	NextAction     string    `json:"nextAction"`
	AnalyzedAt     time.Time `json:"analyzedAt"`
	RetentionAlert bool      `json:"retentionAlert,omitempty"`
}

// ChatClient is the slice of the AI client the analyzer needs.
type ChatClient interface {
	Chat(ctx context.Context, turns []ai.Turn, opts ai.ChatOptions) (string, error)
}

type Analyzer struct {
	client ChatClient
	now    func() time.Time
}

// NewAnalyzer builds an analyzer. A nil client is allowed and yields
// default records for every conversation.
func NewAnalyzer(client ChatClient) *Analyzer {
	return &Analyzer{client: client, now: time.Now}
}

// Analyze scores a conversation. It never returns an error: any call or
// parse failure produces the same default record as a trivial message.
func (a *Analyzer) Analyze(ctx context.Context, turns []ai.Turn) Record {
	if a.client == nil {
		return a.defaultRecord()
	}

	lastMessage := ""
	if len(turns) > 0 {
		lastMessage = turns[len(turns)-1].Content
	}
	if isTrivialMessage(lastMessage) {
		log.Printf("skipping analysis for trivial message")
		return a.defaultRecord()
	}

	recent := turns
	if len(recent) > contextTurns {
		recent = recent[len(recent)-contextTurns:]
	}

	lines := make([]string, 0, len(recent))
	for _, turn := range recent {
		role := turn.Role
		if role == "" {
			role = "user"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(role), turn.Content))
	}
	prompt := fmt.Sprintf(analysisPrompt, strings.Join(lines, "\n"))

	response, err := a.client.Chat(ctx, []ai.Turn{{Role: "user", Content: prompt}}, ai.ChatOptions{
		MaxTokens:   analysisMaxTokens,
		Temperature: ai.Temperature(analysisTemperature),
	})
	if err != nil {
		log.Printf("analysis call failed: %v", err)
		return a.defaultRecord()
	}

	record := a.parseResponse(response)
	if record.ChurnRisk > alertChurnRisk {
		log.Printf("retention alert churnRisk=%d summary=%q", record.ChurnRisk, record.Summary)
		record.RetentionAlert = true
	}
	return record
}

func isTrivialMessage(message string) bool {
	trimmed := strings.TrimSpace(message)
	if utf8.RuneCountInString(trimmed) < minMessageRunes {
		return true
	}
	_, trivial := trivialMessages[strings.ToLower(trimmed)]
	return trivial
}

type rawRecord struct {
	Sentiment  string      `json:"sentiment"`
	Category   string      `json:"category"`
	Urgency    string      `json:"urgency"`
	ChurnRisk  json.Number `json:"churn_risk"`
	Summary    string      `json:"summary"`
	NextAction string      `json:"next_action"`
}

func (a *Analyzer) parseResponse(response string) Record {
	cleaned := strings.TrimSpace(codeFenceRegex.ReplaceAllString(response, ""))
	if block := jsonBlockRegex.FindString(cleaned); block != "" {
		cleaned = block
	}

	raw := rawRecord{}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		log.Printf("analysis parse error: %v on response %q", err, response)
		return a.defaultRecord()
	}

	churnRisk := 0
	if parsed, err := raw.ChurnRisk.Float64(); err == nil {
		churnRisk = clamp(int(parsed), 0, 100)
	}

	return Record{
		Sentiment:  oneOf(raw.Sentiment, "neutral", "positive", "negative"),
		Category:   oneOf(raw.Category, "other", "billing", "technical", "sales", "cancellation"),
		Urgency:    oneOf(raw.Urgency, "medium", "low", "high"),
		ChurnRisk:  churnRisk,
		Summary:    truncate(withDefault(raw.Summary, "analysis pending"), fieldLimit),
		NextAction: truncate(withDefault(raw.NextAction, "review ticket"), fieldLimit),
		AnalyzedAt: a.now().UTC(),
	}
}

func (a *Analyzer) defaultRecord() Record {
	return Record{
		Sentiment:  "neutral",
		Category:   "other",
		Urgency:    "medium",
		ChurnRisk:  0,
		Summary:    "awaiting analysis",
		NextAction: "review ticket",
		AnalyzedAt: a.now().UTC(),
	}
}

func oneOf(value string, fallback string, allowed ...string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == fallback {
		return fallback
	}
	for _, candidate := range allowed {
		if normalized == candidate {
			return candidate
		}
	}
	return fallback
}

func withDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
