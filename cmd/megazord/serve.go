package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samuell19/megazord-ai/internal/api"
	"github.com/samuell19/megazord-ai/internal/db"
	"github.com/samuell19/megazord-ai/internal/revocation"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Megazord HTTP API",
		Long:  "Migrates the database and serves the JSON API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	a, err := buildApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(a.db); err != nil {
		return err
	}
	if port <= 0 {
		port = a.cfg.Server.Port
	}

	// The revoked-token set lives for the whole process and is shared by
	// every request.
	revoked := revocation.NewSet()
	sweeper, err := revocation.NewSweeper(revoked, a.cfg.Security.RevocationSweep, a.log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return api.Start(ctx, api.StartOpts{
		DB:            a.db,
		Conversations: a.orchestrator,
		Credentials:   a.credentials,
		Models:        a.provider,
		Revoked:       revoked,
		Sweeper:       sweeper,
		Port:          port,
		Logger:        a.log,
		Out:           cmd.OutOrStdout(),
	})
}
