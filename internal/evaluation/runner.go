package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medibot/pkg/logging"
)

// Result is the outcome of one case.
type Result struct {
	Case           Case            `json:"case"`
	OK             bool            `json:"ok"`
	Failures       []string        `json:"failures"`
	ConversationID int64           `json:"conversation_id,omitempty"`
	ChatMessageID  int64           `json:"chat_message_id,omitempty"`
	ChatReply      string          `json:"chat_reply,omitempty"`
	CitationsCount int             `json:"citations_count"`
	Explain        json.RawMessage `json:"explain,omitempty"`
	ExplainRAG     json.RawMessage `json:"explain_rag,omitempty"`
}

// CategoryStats counts outcomes per case category.
type CategoryStats struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Report is one evaluation run.
type Report struct {
	RunID       string                   `json:"run_id"`
	GeneratedAt time.Time                `json:"generated_at_utc"`
	BaseURL     string                   `json:"base_url"`
	TotalCases  int                      `json:"total_cases"`
	Passed      int                      `json:"passed"`
	Failed      int                      `json:"failed"`
	ByCategory  map[string]CategoryStats `json:"by_category"`
	Results     []Result                 `json:"results"`
}

// Runner executes cases sequentially against one API.
type Runner struct {
	client *Client
	pause  time.Duration
	logger *logging.Logger
	now    func() time.Time
}

func NewRunner(client *Client, pause time.Duration, logger *logging.Logger) *Runner {
	if client == nil {
		panic("evaluation: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{client: client, pause: pause, logger: logger, now: time.Now}
}

// Run evaluates every case. A transport failure fails that case and the
// run continues; only context cancellation stops it early.
func (r *Runner) Run(ctx context.Context, cases []Case) (Report, error) {
	report := Report{
		RunID:       uuid.NewString(),
		GeneratedAt: r.now().UTC(),
		BaseURL:     r.client.baseURL,
		ByCategory:  map[string]CategoryStats{},
		Results:     make([]Result, 0, len(cases)),
	}

	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := r.runCase(ctx, c)
		report.Results = append(report.Results, res)
		report.TotalCases = len(report.Results)

		stats := report.ByCategory[c.Category]
		if res.OK {
			report.Passed++
			stats.Passed++
			r.logger.Info("evaluation case passed", "index", i+1, "name", c.Name, "category", c.Category)
		} else {
			report.Failed++
			stats.Failed++
			r.logger.Warn("evaluation case failed", "index", i+1, "name", c.Name, "category", c.Category, "failures", res.Failures)
		}
		report.ByCategory[c.Category] = stats

		if r.pause > 0 && i < len(cases)-1 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(r.pause):
			}
		}
	}
	return report, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) Result {
	res := Result{Case: c, Failures: []string{}}
	fail := func(format string, args ...any) Result {
		res.Failures = append(res.Failures, fmt.Sprintf(format, args...))
		return res
	}

	chat, _, err := r.client.chat(ctx, c.Message)
	if err != nil {
		return fail("chat request failed: %v", err)
	}
	res.ConversationID = chat.ConversationID
	res.ChatMessageID = chat.ChatMessageID
	res.ChatReply = chat.Reply
	res.CitationsCount = len(chat.Citations)
	if chat.ChatMessageID == 0 {
		return fail("chat_message_id not returned by /chat")
	}

	explain, rawExplain, err := r.client.explain(ctx, chat.ChatMessageID)
	if err != nil {
		return fail("explain request failed: %v", err)
	}
	res.Explain = rawExplain

	trace, rawTrace, err := r.client.explainRAG(ctx, chat.ChatMessageID)
	if err != nil {
		return fail("explain-rag request failed: %v", err)
	}
	res.ExplainRAG = rawTrace

	res.Failures = checkExpectations(c, res.CitationsCount, explain, trace)
	res.OK = len(res.Failures) == 0
	return res
}

func checkExpectations(c Case, citations int, explain explanation, trace ragTrace) []string {
	failures := []string{}
	risk := explain.RiskAssessment.Level
	emergency := explain.RiskAssessment.EmergencyDetected
	domain := explain.MedicalDomain

	citationsReturned := false
	retrieved := 0
	if trace.RAG != nil {
		citationsReturned = trace.RAG.CitationsReturned
		retrieved = len(trace.RAG.RetrievedChunks)
	}

	if c.ExpectedRiskLevel != nil && risk != *c.ExpectedRiskLevel {
		failures = append(failures, fmt.Sprintf("expected risk_level='%s', got '%s'", *c.ExpectedRiskLevel, risk))
	}
	if c.ExpectedEmergencyDetected != nil && emergency != *c.ExpectedEmergencyDetected {
		failures = append(failures, fmt.Sprintf("expected emergency_detected=%t, got %t", *c.ExpectedEmergencyDetected, emergency))
	}
	if c.ExpectedPrimaryDomain != nil && domain != *c.ExpectedPrimaryDomain {
		failures = append(failures, fmt.Sprintf("expected primary_domain='%s', got '%s'", *c.ExpectedPrimaryDomain, domain))
	}
	if c.RequireCitations != nil {
		if *c.RequireCitations && citations == 0 && !citationsReturned {
			failures = append(failures, "expected citations, but none returned in chat and explain-rag")
		}
		if !*c.RequireCitations && citations > 0 {
			failures = append(failures, fmt.Sprintf("expected NO citations, but chat returned %d", citations))
		}
	}
	if c.MinRetrievedChunks != nil && retrieved < *c.MinRetrievedChunks {
		failures = append(failures, fmt.Sprintf("expected at least %d retrieved_chunks, got %d", *c.MinRetrievedChunks, retrieved))
	}
	if emergency && citations > 0 {
		failures = append(failures, "emergency_detected=true but citations were returned in chat (should be suppressed)")
	}
	return failures
}
