package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

func newTurnCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "turn MESSAGE",
		Short: "Handle one message and exit",
		Long: `Handle one message for --session and exit. With a persistent checkpoint
backend and session store, a later invocation resumes where this one stopped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				res, err := a.sup.HandleTurn(cmd.Context(), flags.sessionID, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if asJSON {
					out, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
					if err != nil {
						return fmt.Errorf("encode result: %w", err)
					}
					printf(cmd.OutOrStdout(), "%s\n", out)
					return nil
				}
				printResult(cmd.OutOrStdout(), res, true)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full turn result as JSON")
	return cmd
}

func newEndCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End a session and delete its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.sessionID == "" {
				return errors.New("--session is required")
			}
			return withApp(cmd, flags, func(a *app) error {
				if err := a.sup.EndSession(cmd.Context(), flags.sessionID); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "session %s ended\n", flags.sessionID)
				return nil
			})
		},
	}
}

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session; every line is a turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app) error {
				return chat(cmd, a, flags.sessionID, cmd.InOrStdin())
			})
		},
	}
}

// chat reads lines until EOF, "/quit", or "/end". "/end" also deletes the
// session.
func chat(cmd *cobra.Command, a *app, sessionID string, in io.Reader) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	scanner := bufio.NewScanner(in)
	printf(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			printf(out, "> ")
			continue
		case "/quit":
			return nil
		case "/end":
			if sessionID == "" {
				return nil
			}
			if err := a.sup.EndSession(ctx, sessionID); err != nil {
				return err
			}
			printf(out, "session %s ended\n", sessionID)
			return nil
		}

		res, err := a.sup.HandleTurn(ctx, sessionID, line)
		if err != nil {
			var te *supervisor.TurnError
			if errors.As(err, &te) {
				printf(out, "! %v\n> ", err)
				continue
			}
			return err
		}
		if sessionID == "" {
			sessionID = res.SessionID
			printf(out, "(session %s)\n", sessionID)
		}
		printResult(out, res, false)
		printf(out, "> ")
	}
	return scanner.Err()
}

func printResult(w io.Writer, res *supervisor.TurnResult, withSession bool) {
	if withSession {
		printf(w, "session: %s\n", res.SessionID)
	}
	printf(w, "[%s/%s]\n", res.Workflow, res.Status)
	if res.Preempted != "" {
		printf(w, "(paused %s)\n", res.Preempted)
	}
	printf(w, "%s\n", res.Payload)
	if res.Status == careflow.StatusCompleted && res.Output != nil && len(res.Output.Data) > 0 {
		for _, line := range dataLines(res.Output.Data) {
			printf(w, "  %s\n", line)
		}
	}
}

// dataLines renders output data as sorted "key: value" lines. Long
// values are elided.
func dataLines(data map[string]string) []string {
	keys := slices.Sorted(maps.Keys(data))
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v := data[k]
		if len(v) > 80 {
			v = v[:77] + "..."
		}
		lines = append(lines, k+": "+v)
	}
	return lines
}
