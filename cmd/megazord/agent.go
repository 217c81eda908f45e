package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/samuell19/megazord-ai/internal/agent"
	"github.com/spf13/cobra"
)

const defaultUser = "local"

func addUserFlag(cmd *cobra.Command, user *string) {
	cmd.Flags().StringVarP(user, "user", "u", defaultUser, "user ID to act as")
}

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}

	cmd.AddCommand(newAgentCreateCmd())
	cmd.AddCommand(newAgentListCmd())
	return cmd
}

func newAgentCreateCmd() *cobra.Command {
	var (
		configPath string
		opts       agent.CreateOpts
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentCreate(cmd, configPath, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	addUserFlag(cmd, &opts.UserID)
	cmd.Flags().StringVar(&opts.Name, "name", "", "agent name (required)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "provider model identifier, e.g. openai/gpt-4o-mini (required)")
	cmd.Flags().StringVar(&opts.SystemPrompt, "system", "", "system prompt")
	cmd.Flags().StringVar(&opts.Configuration, "configuration", "", "JSON object of model settings")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("model")
	return cmd
}

func runAgentCreate(cmd *cobra.Command, configPath string, opts agent.CreateOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	a, err := agent.Create(gormDB, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created agent %s (%s, model %s)\n", a.ID, a.Name, a.Model)
	return nil
}

func newAgentListCmd() *cobra.Command {
	var configPath, user string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentList(cmd, configPath, user)
		},
	}

	addConfigFlag(cmd, &configPath)
	addUserFlag(cmd, &user)
	return cmd
}

func runAgentList(cmd *cobra.Command, configPath, user string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	agents, err := agent.ListByUser(gormDB, user)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(agents) == 0 {
		fmt.Fprintln(out, "No agents found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODEL\tCREATED")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, truncate(a.Name, 30), a.Model, a.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}
