package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samuell19/megazord-ai/internal/credential"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored OpenRouter API key",
	}

	cmd.AddCommand(newKeySetCmd())
	cmd.AddCommand(newKeyShowCmd())
	cmd.AddCommand(newKeyDeleteCmd())
	return cmd
}

// credentialService opens the database and the key store described by the
// config file.
func credentialService(configPath string, logOut io.Writer) (*credential.Service, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	cipher, err := credential.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	return credential.NewService(gormDB, cipher, log), nil
}

func newKeySetCmd() *cobra.Command {
	var configPath, user string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store or replace the API key",
		Long:  "Reads the API key from stdin (without echo when stdin is a terminal) and stores it encrypted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeySet(cmd, configPath, user)
		},
	}

	addConfigFlag(cmd, &configPath)
	addUserFlag(cmd, &user)
	return cmd
}

func runKeySet(cmd *cobra.Command, configPath, user string) error {
	svc, err := credentialService(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	key, err := readSecret(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	info, err := svc.Store(ctx, user, key)
	if err != nil {
		if _, getErr := svc.Get(ctx, user); getErr != nil {
			return err
		}
		info, err = svc.Update(ctx, user, key)
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "API key saved: %s\n", info.MaskedKey)
	return nil
}

// readSecret prompts for the key on a terminal, or reads one line from a
// piped stdin.
func readSecret(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "OpenRouter API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newKeyShowCmd() *cobra.Command {
	var configPath, user string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored API key, masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := credentialService(configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			info, err := svc.Get(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (updated %s)\n", info.MaskedKey, info.UpdatedAt.Format("2006-01-02 15:04"))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	addUserFlag(cmd, &user)
	return cmd
}

func newKeyDeleteCmd() *cobra.Command {
	var configPath, user string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := credentialService(configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key deleted.")
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	addUserFlag(cmd, &user)
	return cmd
}
