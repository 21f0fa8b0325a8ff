package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/model"
)

// SummarizerOptions configure a Summarizer.
type SummarizerOptions struct {
	// Threshold is the message count of the first summarization.
	Threshold int64
	// Interval is the number of messages between summarizations.
	Interval int64
	// RetainRecent raw messages are never summarized.
	RetainRecent int
	// MaxTokens caps the summary, in whitespace separated tokens.
	MaxTokens int
	// MaxNewMessages caps the messages folded into one summary. Older
	// messages beyond the cap are picked up by the next run.
	MaxNewMessages int
	Template       string
}

// Summarizer folds older raw messages of a room into a rolling summary.
type Summarizer struct {
	store   core.MemoryStore
	invoker *model.Invoker
	opts    SummarizerOptions
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(store core.MemoryStore, invoker *model.Invoker, optFns ...func(o *SummarizerOptions)) *Summarizer {
	opts := SummarizerOptions{
		Threshold:      16,
		Interval:       10,
		RetainRecent:   6,
		MaxTokens:      2500,
		MaxNewMessages: 50,
		Template:       SummaryTemplate,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Summarizer{store: store, invoker: invoker, opts: opts}
}

// Name implements Evaluator.
func (s *Summarizer) Name() string { return "SUMMARIZATION" }

// Description implements Evaluator.
func (s *Summarizer) Description() string {
	return "Replaces older messages of the conversation with a rolling summary."
}

// AlwaysRun implements Evaluator.
func (s *Summarizer) AlwaysRun() bool { return false }

// Gate implements Gated.
func (s *Summarizer) Gate() Gate {
	return Gate{Key: "summarization", Threshold: s.opts.Threshold, Interval: s.opts.Interval}
}

// Validate implements Evaluator.
func (s *Summarizer) Validate(_ context.Context, in Input) bool {
	return s.store != nil && s.invoker.Available() && in.Message != nil
}

// Handle implements Evaluator. The new summary is stored before the
// messages it covers and the previous summaries are deleted.
func (s *Summarizer) Handle(ctx context.Context, in Input) error {
	room := in.Message.RoomID

	msgs, err := s.store.GetMemories(ctx, core.MemoryFilter{Type: core.MemoryMessage, RoomID: room})
	if err != nil {
		return err
	}

	if len(msgs) <= s.opts.RetainRecent {
		return nil
	}

	older := msgs[:len(msgs)-s.opts.RetainRecent]
	if s.opts.MaxNewMessages > 0 && len(older) > s.opts.MaxNewMessages {
		older = older[:s.opts.MaxNewMessages]
	}

	previous, err := s.store.GetMemories(ctx, core.MemoryFilter{Type: core.MemorySummary, RoomID: room})
	if err != nil {
		return err
	}

	existing := ""
	if len(previous) > 0 {
		existing = previous[len(previous)-1].Content
	}

	prompt, err := s.invoker.Render(s.opts.Template, in.State, map[string]any{
		"existingSummary": existing,
		"messages":        FormatMessages(older),
		"maxTokens":       s.opts.MaxTokens,
	})
	if err != nil {
		return err
	}

	raw, err := s.invoker.Generate(ctx, model.TypeTextLarge, prompt, model.Params{MaxTokens: s.opts.MaxTokens})
	if err != nil {
		return err
	}

	text := TruncateTokens(summaryText(raw), s.opts.MaxTokens)
	if text == "" {
		return core.NewError(core.CodeModel, "model returned an empty summary")
	}

	if _, err := s.store.CreateMemory(ctx, core.Memory{
		Type:    core.MemorySummary,
		RoomID:  room,
		AgentID: in.Message.AgentID,
		Content: text,
		Metadata: map[string]any{
			"messageCount": len(older),
			"fromMessage":  older[0].ID,
			"toMessage":    older[len(older)-1].ID,
			"summarizedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}); err != nil {
		return err
	}

	ids := make([]string, 0, len(older)+len(previous))
	for _, m := range older {
		ids = append(ids, m.ID)
	}

	for _, m := range previous {
		ids = append(ids, m.ID)
	}

	return s.store.DeleteMemories(ctx, ids)
}

func summaryText(raw string) string {
	resp, err := model.Parse(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}

	for _, k := range []string{"text", "summary"} {
		if v := resp.String(k); v != "" {
			return v
		}
	}

	return strings.TrimSpace(raw)
}

// FormatMessages renders memories as "speaker: content" lines.
func FormatMessages(msgs []core.Memory) string {
	lines := make([]string, len(msgs))

	for i, m := range msgs {
		who := m.EntityID
		if who == "" {
			who = m.AgentID
		}

		lines[i] = fmt.Sprintf("%s: %s", who, m.Content)
	}

	return strings.Join(lines, "\n")
}

// TruncateTokens keeps the first max whitespace separated tokens of text.
// Text within the cap is returned trimmed but otherwise unchanged.
func TruncateTokens(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 {
		return text
	}

	tokens := strings.Fields(text)
	if len(tokens) <= max {
		return text
	}

	return strings.Join(tokens[:max], " ")
}

var (
	_ Evaluator = (*Summarizer)(nil)
	_ Gated     = (*Summarizer)(nil)
)
