package evaluator

import (
	"context"
	"strconv"
	"strings"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/model"
)

// FactExtractorOptions configure a FactExtractor.
type FactExtractorOptions struct {
	Enabled   bool
	Threshold int64
	Interval  int64
	// MinConfidence drops facts the model is less sure about.
	MinConfidence float64
	// RecentMessages is the window of messages shown to the model.
	RecentMessages int
	Template       string
}

// Fact is one extracted long-term fact.
type Fact struct {
	Category   string
	Content    string
	Confidence float64
}

// FactExtractor persists durable facts about the message sender.
type FactExtractor struct {
	store   core.MemoryStore
	invoker *model.Invoker
	opts    FactExtractorOptions
}

// NewFactExtractor creates a FactExtractor.
func NewFactExtractor(store core.MemoryStore, invoker *model.Invoker, optFns ...func(o *FactExtractorOptions)) *FactExtractor {
	opts := FactExtractorOptions{
		Enabled:        true,
		Threshold:      20,
		Interval:       10,
		MinConfidence:  0.85,
		RecentMessages: 20,
		Template:       FactTemplate,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &FactExtractor{store: store, invoker: invoker, opts: opts}
}

// Name implements Evaluator.
func (f *FactExtractor) Name() string { return "FACT_EXTRACTION" }

// Description implements Evaluator.
func (f *FactExtractor) Description() string {
	return "Extracts durable facts about the sender into long-term memory."
}

// AlwaysRun implements Evaluator.
func (f *FactExtractor) AlwaysRun() bool { return false }

// Gate implements Gated.
func (f *FactExtractor) Gate() Gate {
	return Gate{Key: "fact_extraction", Threshold: f.opts.Threshold, Interval: f.opts.Interval}
}

// Validate implements Evaluator.
func (f *FactExtractor) Validate(_ context.Context, in Input) bool {
	return f.opts.Enabled && f.store != nil && f.invoker.Available() && in.Message != nil && in.Message.EntityID != ""
}

// Handle implements Evaluator.
func (f *FactExtractor) Handle(ctx context.Context, in Input) error {
	msg := in.Message

	recent, err := f.store.GetMemories(ctx, core.MemoryFilter{Type: core.MemoryMessage, RoomID: msg.RoomID, Limit: f.opts.RecentMessages})
	if err != nil {
		return err
	}

	if len(recent) == 0 {
		return nil
	}

	known, err := f.store.GetMemories(ctx, core.MemoryFilter{Type: core.MemoryFact, EntityID: msg.EntityID})
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(known))
	knownText := make([]string, 0, len(known))

	for _, k := range known {
		seen[normalizeFact(k.Content)] = struct{}{}
		knownText = append(knownText, k.Content)
	}

	prompt, err := f.invoker.Render(f.opts.Template, in.State, map[string]any{
		"entity":     msg.EntityID,
		"messages":   FormatMessages(recent),
		"knownFacts": knownText,
	})
	if err != nil {
		return err
	}

	raw, err := f.invoker.Generate(ctx, model.TypeTextSmall, prompt, model.Params{})
	if err != nil {
		return err
	}

	for _, fact := range ParseFacts(raw) {
		if fact.Confidence < f.opts.MinConfidence {
			continue
		}

		k := normalizeFact(fact.Content)
		if _, dup := seen[k]; dup {
			continue
		}

		seen[k] = struct{}{}

		if _, err := f.store.CreateMemory(ctx, core.Memory{
			Type:     core.MemoryFact,
			RoomID:   msg.RoomID,
			AgentID:  msg.AgentID,
			EntityID: msg.EntityID,
			Content:  fact.Content,
			Metadata: map[string]any{
				"category":   fact.Category,
				"confidence": fact.Confidence,
				"sourceId":   msg.ID,
			},
		}); err != nil {
			return err
		}
	}

	return nil
}

// ParseFacts reads <fact> blocks. Blocks without content are skipped and a
// missing or malformed confidence counts as zero.
func ParseFacts(raw string) []Fact {
	var out []Fact

	for _, b := range model.ParseBlocks(raw, "fact") {
		content := strings.TrimSpace(b["content"])
		if content == "" {
			continue
		}

		conf, err := strconv.ParseFloat(strings.TrimSpace(b["confidence"]), 64)
		if err != nil {
			conf = 0
		}

		out = append(out, Fact{
			Category:   strings.TrimSpace(b["category"]),
			Content:    content,
			Confidence: conf,
		})
	}

	return out
}

func normalizeFact(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var (
	_ Evaluator = (*FactExtractor)(nil)
	_ Gated     = (*FactExtractor)(nil)
)
