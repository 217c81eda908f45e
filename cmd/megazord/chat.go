package main

import (
	"fmt"
	"strings"

	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/conversation"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		configPath string
		user       string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "chat <agent-id> <message>",
		Short: "Send one message to an agent",
		Long:  "Sends a message to an agent and prints the reply. Without --session a new session is started.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, conversation.Request{
				AgentID:   args[0],
				UserID:    user,
				Message:   strings.Join(args[1:], " "),
				SessionID: sessionID,
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	addUserFlag(cmd, &user)
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	return cmd
}

func runChat(cmd *cobra.Command, configPath string, req conversation.Request) error {
	a, err := buildApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return chat(cmd, a.orchestrator, req)
}

func chat(cmd *cobra.Command, orch *conversation.Orchestrator, req conversation.Request) error {
	// Title generation runs in the background; let it finish before exit.
	defer orch.Wait()

	res, err := orch.HandleMessage(cmd.Context(), req)
	if err != nil {
		if msg := apperr.Message(err); msg != "" {
			return fmt.Errorf("%s (%s)", msg, apperr.KindOf(err))
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Response)
	fmt.Fprintln(out)
	footer := fmt.Sprintf("session %s · model %s", res.SessionID, res.Model)
	if res.TokensUsed != nil {
		footer += " · " + formatTokenCount(int64(*res.TokensUsed)) + " tokens"
	}
	fmt.Fprintln(cmd.ErrOrStderr(), footer)
	return nil
}
