package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/cognimesh"
	"github.com/hupe1980/cognimesh/config"
	"github.com/hupe1980/cognimesh/core"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	logBackend string
}

func buildRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "cognimesh",
		Short: "Agent cognitive pipeline: compose state, decide, act, evaluate and plan",
		Long: strings.TrimSpace(`cognimesh runs one agent against a configured model backend and memory store.

Configuration is read from an optional YAML file and COGNIMESH_* environment
variables. Without configuration everything runs in memory with the mock
model backend.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to a YAML config file")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: json or text")
	pf.StringVar(&g.logBackend, "log-backend", "", "Log backend: slog or zap")

	root.AddCommand(newTurnCommand(g))
	root.AddCommand(newComposeCommand(g))
	root.AddCommand(newClassifyCommand(g))
	root.AddCommand(newPlanCommand(g))
	root.AddCommand(newVersionCommand())

	return root
}

func newTurnCommand(g *globalFlags) *cobra.Command {
	var (
		room, entity, text string
		actions            []string
	)

	cmd := &cobra.Command{
		Use:   "turn",
		Short: "Run one message turn and print the action results",
		Example: strings.Join([]string{
			`  cognimesh turn --text "hello"`,
			`  cognimesh turn --room support --entity alice --text "refund order 7" --actions LOOKUP,REPLY`,
		}, "\n"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := openMesh(cmd, g)
			if err != nil {
				return err
			}
			defer m.Close()

			msg := core.NewMessage(room, entity, text)
			msg.Content.Actions = actions
			msg.Content.Source = "cli"

			results, err := m.RunTurn(cmd.Context(), msg)
			if err != nil {
				return err
			}

			return printJSON(cmd, results)
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "cli", "Room id")
	cmd.Flags().StringVarP(&entity, "entity", "e", "user", "Sender entity id")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Message text")
	cmd.Flags().StringSliceVar(&actions, "actions", nil, "Explicitly requested actions")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func newComposeCommand(g *globalFlags) *cobra.Command {
	var (
		room, entity, text string
		providers          []string
	)

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose and print the state for a message",
		Long:  "Compose the state for a message. Without --providers every registered provider contributes.",
		Example: strings.Join([]string{
			`  cognimesh compose --text "hello"`,
			`  cognimesh compose --text "hello" --providers CHARACTER,SETTINGS`,
		}, "\n"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := openMesh(cmd, g)
			if err != nil {
				return err
			}
			defer m.Close()

			state, err := m.Compose(cmd.Context(), core.NewMessage(room, entity, text), providers...)
			if err != nil {
				return err
			}

			return printJSON(cmd, map[string]any{
				"text":     state.Text,
				"values":   state.Values,
				"failures": state.Failures,
			})
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "cli", "Room id")
	cmd.Flags().StringVarP(&entity, "entity", "e", "user", "Sender entity id")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Message text")
	cmd.Flags().StringSliceVar(&providers, "providers", nil, "Static providers to include")

	return cmd
}

func newClassifyCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "classify <goal>",
		Short:   "Classify a goal's complexity and execution model",
		Example: `  cognimesh classify "collect the numbers then add them up"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMesh(cmd, g)
			if err != nil {
				return err
			}
			defer m.Close()

			cls, err := m.Classify(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			return printJSON(cmd, cls)
		},
	}
}

func newPlanCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "plan <goal>",
		Short:   "Plan a goal and execute it through the registered actions",
		Example: `  cognimesh plan "reply with a greeting"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMesh(cmd, g)
			if err != nil {
				return err
			}
			defer m.Close()

			res, err := m.CreateAndExecutePlan(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			return printJSON(cmd, res)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "cognimesh", cognimesh.Version)
			return err
		},
	}
}

func openMesh(cmd *cobra.Command, g *globalFlags) (*cognimesh.Mesh, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}

	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}

	if g.logBackend != "" {
		cfg.Logging.Backend = g.logBackend
	}

	logger, err := cognimesh.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	return cognimesh.NewFromConfig(cmd.Context(), cfg, logger)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
