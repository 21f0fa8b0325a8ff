package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/cognimesh/core"
)

// Built-in provider names.
const (
	NameCharacter      = "CHARACTER"
	NameTime           = "TIME"
	NameSummary        = "SUMMARY"
	NameRecentMessages = "RECENT_MESSAGES"
	NameFacts          = "FACTS"
	NameKnowledge      = "KNOWLEDGE"
	NameActions        = "ACTIONS"
	NameSettings       = "SETTINGS"
)

// Character describes the agent persona.
type Character struct {
	Name string
	Bio  string
}

// NewCharacterProvider returns the static persona block. It also exposes
// the agent name as core.ValueAgentName.
func NewCharacterProvider(c Character) Provider {
	return NewFuncProvider(Descriptor{
		Name:        NameCharacter,
		Description: "Agent name and biography",
		Position:    -100,
	}, func(context.Context, *core.Message) (core.ProviderResult, error) {
		var sb strings.Builder

		fmt.Fprintf(&sb, "# About %s", c.Name)

		if bio := strings.TrimSpace(c.Bio); bio != "" {
			sb.WriteString("\n")
			sb.WriteString(bio)
		}

		return core.ProviderResult{
			Text:   sb.String(),
			Values: map[string]any{core.ValueAgentName: c.Name, "bio": c.Bio},
		}, nil
	})
}

// NewTimeProvider returns the current time block. A nil clock uses time.Now.
func NewTimeProvider(clock func() time.Time) Provider {
	if clock == nil {
		clock = time.Now
	}

	return NewFuncProvider(Descriptor{
		Name:        NameTime,
		Description: "Current date and time",
		Dynamic:     true,
		Position:    -50,
	}, func(context.Context, *core.Message) (core.ProviderResult, error) {
		now := clock().UTC()

		return core.ProviderResult{
			Text:   "# Current time\nThe current date and time is " + now.Format("Monday, January 2, 2006 15:04:05") + " UTC.",
			Values: map[string]any{"time": now.Format(time.RFC3339)},
		}, nil
	})
}

// NewSettingsProvider lists non-sensitive settings. Keys matching
// core.IsSensitiveKey are never rendered. Settings that cannot enumerate
// their keys contribute nothing.
func NewSettingsProvider(settings core.Settings) Provider {
	return NewFuncProvider(Descriptor{
		Name:        NameSettings,
		Description: "Agent configuration settings",
		Position:    60,
	}, func(context.Context, *core.Message) (core.ProviderResult, error) {
		lister, ok := settings.(core.SettingsLister)
		if !ok {
			return core.ProviderResult{}, nil
		}

		keys := slices.Sorted(slices.Values(lister.SettingKeys()))
		visible := map[string]any{}

		var lines []string

		for _, k := range keys {
			if core.IsSensitiveKey(k) {
				continue
			}

			v, ok := settings.GetSetting(k)
			if !ok {
				continue
			}

			visible[k] = v
			lines = append(lines, fmt.Sprintf("- %s: %s", k, v))
		}

		if len(lines) == 0 {
			return core.ProviderResult{}, nil
		}

		return core.ProviderResult{
			Text: "# Settings\n" + strings.Join(lines, "\n"),
			Data: map[string]any{"settings": visible},
		}, nil
	})
}

// ActionCatalog is the view of the action subsystem the ACTIONS provider
// needs. The action dispatcher implements it.
type ActionCatalog interface {
	// ValidateCandidates returns the names of actions valid for msg.
	ValidateCandidates(ctx context.Context, msg *core.Message, state *core.State) []string
	// Describe returns an action's description.
	Describe(name string) string
}

// NewActionsProvider lists the actions that validate for the message.
func NewActionsProvider(catalog ActionCatalog) Provider {
	return NewFuncProvider(Descriptor{
		Name:        NameActions,
		Description: "Actions available for this message",
		Dynamic:     true,
		Position:    50,
	}, func(ctx context.Context, msg *core.Message) (core.ProviderResult, error) {
		names := catalog.ValidateCandidates(ctx, msg, core.NewState())
		if len(names) == 0 {
			return core.ProviderResult{Values: map[string]any{"actionNames": ""}}, nil
		}

		lines := make([]string, len(names))
		for i, n := range names {
			lines[i] = fmt.Sprintf("- %s: %s", n, catalog.Describe(n))
		}

		return core.ProviderResult{
			Text:   "# Available actions\n" + strings.Join(lines, "\n"),
			Values: map[string]any{"actionNames": strings.Join(names, ", ")},
			Data:   map[string]any{"actions": names},
		}, nil
	})
}
