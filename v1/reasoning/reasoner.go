package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Reasoner drives a chat model for NL-to-SQL generation and result
// summaries. It never executes SQL itself.
type Reasoner struct {
	chat    model.BaseChatModel
	maxRows int
	now     func() time.Time
}

func NewReasoner(chat model.BaseChatModel, cfg Config) *Reasoner {
	maxRows := cfg.MaxSummaryRows
	if maxRows <= 0 {
		maxRows = DefaultMaxSummaryRows
	}
	return &Reasoner{chat: chat, maxRows: maxRows, now: time.Now}
}

type generatedQuery struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// GenerateQuery asks the model for one SQL statement answering question
// over schemaText. The result is untrusted and must be vetted by the
// caller before execution.
func (r *Reasoner) GenerateQuery(ctx context.Context, question, schemaText string) (string, error) {
	if strings.TrimSpace(schemaText) == "" {
		schemaText = ReceiptSchema
	}
	msgs := []*schema.Message{
		{Role: schema.System, Content: fmt.Sprintf(querySystemPrompt, r.now().Format("2006-01-02"), schemaText)},
		{Role: schema.User, Content: question},
	}

	content, err := r.generate(ctx, msgs)
	if err != nil {
		return "", err
	}

	var out generatedQuery
	if raw := extractJSONObject(content); raw != "" && json.Unmarshal([]byte(raw), &out) == nil && out.SQL != "" {
		return strings.TrimSpace(out.SQL), nil
	}

	// Some models ignore the JSON instruction and answer with bare SQL.
	sql := StripCodeFence(content)
	if !strings.HasPrefix(strings.ToUpper(sql), "SELECT") && !strings.HasPrefix(strings.ToUpper(sql), "WITH") {
		return "", ErrNoStatement
	}
	return sql, nil
}

// Summarize turns result rows into a short answer for the rep.
func (r *Reasoner) Summarize(ctx context.Context, question string, rows []map[string]any) (string, error) {
	if len(rows) > r.maxRows {
		rows = rows[:r.maxRows]
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("reasoning: encode rows: %w", err)
	}

	msgs := []*schema.Message{
		{Role: schema.System, Content: summarySystemPrompt},
		{Role: schema.User, Content: fmt.Sprintf("Question: %s\n\nRows (%d):\n%s", question, len(rows), data)},
	}

	content, err := r.generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	answer := CleanAnswer(content)
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

func (r *Reasoner) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	resp, err := r.chat.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("reasoning: generate: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}
