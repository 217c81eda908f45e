package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	var (
		configPath string
		user       string
		filter     string
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available to your API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, configPath, user, filter)
		},
	}

	addConfigFlag(cmd, &configPath)
	addUserFlag(cmd, &user)
	cmd.Flags().StringVar(&filter, "filter", "", "only show models whose ID contains this text")
	return cmd
}

func runModels(cmd *cobra.Command, configPath, user, filter string) error {
	a, err := buildApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	key, err := a.credentials.Resolve(ctx, user)
	if err != nil {
		return err
	}
	models, err := a.provider.ListModels(ctx, key)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCONTEXT\tPROMPT/M\tCOMPLETION/M")
	shown := 0
	for _, m := range models {
		if filter != "" && !strings.Contains(strings.ToLower(m.ID), strings.ToLower(filter)) {
			continue
		}
		prompt, completion := "-", "-"
		if m.Pricing != nil {
			prompt, completion = pricePerMillion(m.Pricing.Prompt), pricePerMillion(m.Pricing.Completion)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ID, truncate(m.Name, 40), formatTokenCount(int64(m.ContextLength)), prompt, completion)
		shown++
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d models\n", shown)
	return nil
}
