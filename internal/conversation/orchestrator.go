// Package conversation runs one user exchange with an agent: it resolves
// the session, persists the user's message, builds a bounded prompt, calls
// the completion provider and records the reply.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/config"
	"github.com/samuell19/megazord-ai/internal/logging"
	"github.com/samuell19/megazord-ai/internal/models"
	"github.com/samuell19/megazord-ai/internal/provider"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tuning values.
const (
	DefaultMaxRecursionDepth  = 5
	DefaultHistoryLimit       = 50
	DefaultTitleAfterMessages = 4
	DefaultMetadataTimeout    = 30 * time.Second

	tracerName = "github.com/samuell19/megazord-ai/internal/conversation"
)

// AgentLookup resolves agents by ID.
type AgentLookup interface {
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
}

// SessionStore is the subset of session persistence the orchestrator uses.
type SessionStore interface {
	CreateSession(ctx context.Context, agentID, userID string) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	CountMessages(ctx context.Context, sessionID string) (int, error)
	ApplyGenerated(ctx context.Context, id, title, description, emoji string) error
}

// MessageStore is the subset of message persistence the orchestrator uses.
// AppendMessage assigns the message its ID and sequence number.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	RecentMessages(ctx context.Context, sessionID string, before, limit int) ([]models.Message, error)
	AnnotateMessage(ctx context.Context, id, reason string) error
}

// CredentialSource yields a user's plaintext provider key.
type CredentialSource interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// Completer performs a chat completion.
type Completer interface {
	Send(ctx context.Context, credential, model string, messages []provider.Message) (*provider.Result, error)
}

// Request is one inbound user message.
type Request struct {
	AgentID   string
	UserID    string
	Message   string
	SessionID string // empty starts a new session
	Depth     int    // nesting level of this call; never persisted
}

// Result is a completed exchange.
type Result struct {
	Response   string `json:"response"`
	Model      string `json:"model"`
	TokensUsed *int   `json:"tokensUsed,omitempty"`
	SessionID  string `json:"sessionId"`
	MessageID  string `json:"messageId"`
}

// Options configures an Orchestrator. Zero tuning values take the defaults.
type Options struct {
	Agents      AgentLookup
	Sessions    SessionStore
	Messages    MessageStore
	Credentials CredentialSource
	Completer   Completer

	MaxRecursionDepth  int
	HistoryLimit       int
	TitleAfterMessages int
	MetadataTimeout    time.Duration

	Logger *slog.Logger
	Tracer trace.Tracer
	Now    func() time.Time
}

// ApplyConfig copies the conversation tuning values from cfg.
func (o *Options) ApplyConfig(cfg config.ConversationConfig) {
	o.MaxRecursionDepth = cfg.MaxRecursionDepth
	o.HistoryLimit = cfg.HistoryLimit
	o.TitleAfterMessages = cfg.TitleAfterMessages
	o.MetadataTimeout = cfg.MetadataTimeout
}

// Orchestrator handles exchanges. It holds no per-session state; ordering
// of concurrent exchanges in one session is left to the message store.
type Orchestrator struct {
	agents      AgentLookup
	sessions    SessionStore
	messages    MessageStore
	credentials CredentialSource
	completer   Completer

	maxDepth        int
	historyLimit    int
	titleAfter      int
	metadataTimeout time.Duration

	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	pending  sync.WaitGroup
	inflight sync.Map // session ID -> struct{}, metadata generation in progress
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Agents == nil:
		return nil, fmt.Errorf("conversation: agent lookup is required")
	case opts.Sessions == nil:
		return nil, fmt.Errorf("conversation: session store is required")
	case opts.Messages == nil:
		return nil, fmt.Errorf("conversation: message store is required")
	case opts.Credentials == nil:
		return nil, fmt.Errorf("conversation: credential source is required")
	case opts.Completer == nil:
		return nil, fmt.Errorf("conversation: completer is required")
	}
	if opts.MaxRecursionDepth <= 0 {
		opts.MaxRecursionDepth = DefaultMaxRecursionDepth
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.TitleAfterMessages <= 0 {
		opts.TitleAfterMessages = DefaultTitleAfterMessages
	}
	if opts.MetadataTimeout <= 0 {
		opts.MetadataTimeout = DefaultMetadataTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		agents:          opts.Agents,
		sessions:        opts.Sessions,
		messages:        opts.Messages,
		credentials:     opts.Credentials,
		completer:       opts.Completer,
		maxDepth:        opts.MaxRecursionDepth,
		historyLimit:    opts.HistoryLimit,
		titleAfter:      opts.TitleAfterMessages,
		metadataTimeout: opts.MetadataTimeout,
		log:             opts.Logger,
		tracer:          opts.Tracer,
		now:             opts.Now,
	}, nil
}

// HandleMessage runs one exchange. Failures before the user's message is
// stored leave no trace; later failures annotate that message and return
// the classified cause.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (*Result, error) {
	if req.Depth >= o.maxDepth {
		return nil, apperr.New(apperr.KindRecursionLimit, "maximum recursion depth of %d exceeded", o.maxDepth)
	}
	start := o.now()

	ctx, span := o.tracer.Start(ctx, "conversation.handle_message", trace.WithAttributes(
		attribute.String("agent.id", req.AgentID),
		attribute.Int("conversation.depth", req.Depth),
	))
	defer span.End()

	res, err := o.handle(ctx, req, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) handle(ctx context.Context, req Request, start time.Time) (*Result, error) {
	log := logging.FromContext(ctx, o.log).With("agent_id", req.AgentID, "user_id", req.UserID)

	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "message must not be empty")
	}

	ag, err := o.resolveAgent(ctx, req)
	if err != nil {
		return nil, err
	}
	sess, err := o.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}
	log = log.With("session_id", sess.ID)

	userMsg := &models.Message{
		SessionID: sess.ID,
		Role:      models.RoleUser,
		Content:   req.Message,
	}
	if err := o.messages.AppendMessage(ctx, userMsg); err != nil {
		return nil, apperr.Wrap(err, "failed to save message")
	}

	// From here on the exchange runs to completion even if the caller goes
	// away, so the stored user message always gets a reply or an annotation.
	work := context.WithoutCancel(ctx)

	credential, err := o.credentials.Resolve(work, req.UserID)
	if err != nil {
		return nil, o.fail(work, log, userMsg, err)
	}

	history, err := o.messages.RecentMessages(work, sess.ID, userMsg.Sequence, o.historyLimit)
	if err != nil {
		return nil, o.fail(work, log, userMsg, apperr.Wrap(err, "failed to load conversation history"))
	}
	prompt := buildPrompt(ag.SystemPrompt, history, req.Message)

	reply, err := o.completer.Send(work, credential, ag.Model, prompt)
	if err != nil {
		return nil, o.fail(work, log, userMsg, apperr.Wrap(err, "failed to process message"))
	}

	elapsed := o.now().Sub(start).Milliseconds()
	assistant := &models.Message{
		SessionID:        sess.ID,
		Role:             models.RoleAssistant,
		Content:          reply.Content,
		Metadata:         replyMetadata(reply),
		ProcessingTimeMs: &elapsed,
		ParentMessageID:  &userMsg.ID,
	}
	var tokens *int
	if reply.Usage != nil {
		total := reply.Usage.TotalTokens
		tokens = &total
		assistant.TokensUsed = &total
	}
	if err := o.messages.AppendMessage(work, assistant); err != nil {
		return nil, o.fail(work, log, userMsg, &apperr.Error{
			Kind:    apperr.KindProcessingFailed,
			Message: "failed to save assistant reply",
			Err:     err,
		})
	}

	// The reply is stored, so the exchange succeeded even if the activity
	// timestamp cannot be bumped.
	if err := o.sessions.TouchSession(work, sess.ID, o.now()); err != nil {
		log.Warn("update session activity", "error", err)
	}
	o.maybeGenerateMetadata(work, log, sess, ag.Model, credential)

	attrs := []any{"model", reply.Model, "duration_ms", elapsed}
	if tokens != nil {
		attrs = append(attrs, "tokens", *tokens)
	}
	log.Info("message processed", attrs...)
	return &Result{
		Response:   reply.Content,
		Model:      reply.Model,
		TokensUsed: tokens,
		SessionID:  sess.ID,
		MessageID:  assistant.ID,
	}, nil
}

// Wait blocks until background metadata generation has finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

func (o *Orchestrator) resolveAgent(ctx context.Context, req Request) (*models.Agent, error) {
	ag, err := o.agents.GetAgent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if ag == nil {
		return nil, apperr.New(apperr.KindNotFound, "agent not found")
	}
	if ag.UserID != req.UserID {
		return nil, apperr.New(apperr.KindAccessDenied, "access denied, this agent belongs to another user")
	}
	return ag, nil
}

func (o *Orchestrator) resolveSession(ctx context.Context, req Request) (*models.Session, error) {
	if req.SessionID == "" {
		sess, err := o.sessions.CreateSession(ctx, req.AgentID, req.UserID)
		if err != nil {
			return nil, apperr.Wrap(err, "failed to create session")
		}
		return sess, nil
	}
	sess, err := o.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	if sess.UserID != req.UserID {
		return nil, apperr.New(apperr.KindAccessDenied, "access denied, this session belongs to another user")
	}
	if sess.AgentID != req.AgentID {
		return nil, apperr.New(apperr.KindAccessDenied, "session belongs to a different agent")
	}
	return sess, nil
}

// fail annotates the stored user message with cause and returns cause.
// A failed annotation is logged only.
func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, userMsg *models.Message, cause error) error {
	log.Warn("message processing failed",
		"message_id", userMsg.ID,
		"kind", apperr.KindOf(cause),
		"error", cause,
	)
	if err := o.messages.AnnotateMessage(ctx, userMsg.ID, apperr.Reason(cause)); err != nil {
		log.Error("annotate failed message", "message_id", userMsg.ID, "error", err)
	}
	return cause
}

func replyMetadata(r *provider.Result) string {
	meta := map[string]interface{}{
		"model":         r.Model,
		"finish_reason": r.FinishReason,
	}
	if r.Usage != nil {
		meta["prompt_tokens"] = r.Usage.PromptTokens
		meta["completion_tokens"] = r.Usage.CompletionTokens
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}
