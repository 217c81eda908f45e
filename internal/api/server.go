// Package api serves the Megazord JSON API over gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samuell19/megazord-ai/internal/conversation"
	"github.com/samuell19/megazord-ai/internal/credential"
	"github.com/samuell19/megazord-ai/internal/provider"
	"github.com/samuell19/megazord-ai/internal/revocation"
	"gorm.io/gorm"
)

// DefaultPort is used when StartOpts.Port is unset.
const DefaultPort = 3000

const shutdownTimeout = 10 * time.Second

// Conversations runs exchanges. *conversation.Orchestrator satisfies it.
type Conversations interface {
	HandleMessage(ctx context.Context, req conversation.Request) (*conversation.Result, error)
	Wait()
}

// Credentials manages stored provider keys. *credential.Service satisfies it.
type Credentials interface {
	Store(ctx context.Context, userID, key string) (*credential.Info, error)
	Update(ctx context.Context, userID, key string) (*credential.Info, error)
	Get(ctx context.Context, userID string) (*credential.Info, error)
	Delete(ctx context.Context, userID string) error
	Resolve(ctx context.Context, userID string) (string, error)
}

// ModelCatalog lists the provider's models. *provider.Client satisfies it.
type ModelCatalog interface {
	ListModels(ctx context.Context, credential string) ([]provider.ModelDescriptor, error)
}

// StartOpts holds the server's collaborators and listener settings.
type StartOpts struct {
	DB            *gorm.DB
	Conversations Conversations
	Credentials   Credentials
	Models        ModelCatalog
	Revoked       *revocation.Set
	Sweeper       *revocation.Sweeper // optional
	Port          int
	Logger        *slog.Logger
	Out           io.Writer
}

func (o *StartOpts) validate() error {
	switch {
	case o.DB == nil:
		return fmt.Errorf("api: db is required")
	case o.Conversations == nil:
		return fmt.Errorf("api: conversations is required")
	case o.Credentials == nil:
		return fmt.Errorf("api: credentials is required")
	case o.Models == nil:
		return fmt.Errorf("api: model catalog is required")
	case o.Revoked == nil:
		return fmt.Errorf("api: revoked token set is required")
	}
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully, lets in-flight requests finish and waits for
// background conversation work.
func Start(ctx context.Context, opts StartOpts) error {
	if err := opts.validate(); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	var active sync.WaitGroup
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           trackActive(newRouter(opts), &active),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if opts.Sweeper != nil {
		go opts.Sweeper.Run(ctx)
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			opts.Logger.Warn("api: shutdown", "error", err)
		}
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Megazord API listening on http://localhost:%d\n", opts.Port)
	}
	opts.Logger.Info("api: listening", "port", opts.Port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}

	// ListenAndServe returns as soon as Shutdown begins. Exchanges still in
	// their handlers must finish before background work is awaited, even
	// when Shutdown gives up at its deadline.
	<-shutdownDone
	active.Wait()
	opts.Conversations.Wait()
	return nil
}

// trackActive counts requests inside h. Once Shutdown has begun no
// connection starts a new request, so waiting on active cannot race an Add.
func trackActive(h http.Handler, active *sync.WaitGroup) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		active.Add(1)
		defer active.Done()
		h.ServeHTTP(w, r)
	})
}

// newRouter builds the gin engine with every route registered.
func newRouter(opts StartOpts) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestContext(opts.Logger), cors())
	registerRoutes(router, &handlers{
		db:            opts.DB,
		conversations: opts.Conversations,
		credentials:   opts.Credentials,
		models:        opts.Models,
		revoked:       opts.Revoked,
	})
	return router
}
