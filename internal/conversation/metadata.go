package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/samuell19/megazord-ai/internal/models"
	"github.com/samuell19/megazord-ai/internal/provider"
)

const (
	metadataHistory   = 10
	maxTitleRunes     = 80
	maxDescRunes      = 255
	maxEmojiRunes     = 8
	transcriptPerTurn = 500
)

const metadataInstruction = `You label chat conversations. Read the transcript and reply with only a JSON object:
{"title": "<at most 6 words>", "description": "<one short sentence>", "emoji": "<one emoji>"}`

// generated is the provider's proposal for a session's display metadata.
type generated struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Emoji       string `json:"emoji"`
}

// maybeGenerateMetadata starts background title generation once a session
// has enough messages and has not been titled yet.
func (o *Orchestrator) maybeGenerateMetadata(ctx context.Context, log *slog.Logger, sess *models.Session, model, credential string) {
	if sess.TitleGenerated {
		return
	}
	count, err := o.sessions.CountMessages(ctx, sess.ID)
	if err != nil {
		log.Warn("count session messages", "error", err)
		return
	}
	if count < o.titleAfter {
		return
	}
	if _, busy := o.inflight.LoadOrStore(sess.ID, struct{}{}); busy {
		return
	}

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		defer o.inflight.Delete(sess.ID)

		gctx, cancel := context.WithTimeout(ctx, o.metadataTimeout)
		defer cancel()
		if err := o.generateMetadata(gctx, sess.ID, model, credential); err != nil {
			log.Warn("session metadata generation failed", "error", err)
			return
		}
		log.Debug("session metadata generated")
	}()
}

// generateMetadata asks the provider to label the session and stores the
// result.
func (o *Orchestrator) generateMetadata(ctx context.Context, sessionID, model, credential string) error {
	history, err := o.messages.RecentMessages(ctx, sessionID, 0, metadataHistory)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	if len(history) == 0 {
		return fmt.Errorf("no usable messages")
	}

	prompt := []provider.Message{
		{Role: provider.RoleSystem, Content: metadataInstruction},
		{Role: provider.RoleUser, Content: transcript(history)},
	}
	reply, err := o.completer.Send(ctx, credential, model, prompt)
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	g, err := parseGenerated(reply.Content)
	if err != nil {
		return err
	}
	if err := o.sessions.ApplyGenerated(ctx, sessionID, g.Title, g.Description, g.Emoji); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

func transcript(history []models.Message) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(truncateRunes(strings.TrimSpace(m.Content), transcriptPerTurn))
		b.WriteString("\n")
	}
	return b.String()
}

// parseGenerated extracts and validates the JSON object in a model reply.
// Models often wrap JSON in prose or code fences, so only the outermost
// braces are decoded.
func parseGenerated(content string) (*generated, error) {
	open := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if open < 0 || end <= open {
		return nil, fmt.Errorf("reply contains no JSON object")
	}
	var g generated
	if err := json.Unmarshal([]byte(content[open:end+1]), &g); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	g.Title = strings.Trim(strings.TrimSpace(g.Title), `"'`)
	if g.Title == "" {
		return nil, fmt.Errorf("reply has no title")
	}
	g.Title = truncateRunes(g.Title, maxTitleRunes)
	g.Description = truncateRunes(strings.TrimSpace(g.Description), maxDescRunes)
	g.Emoji = strings.TrimSpace(g.Emoji)
	if utf8.RuneCountInString(g.Emoji) > maxEmojiRunes {
		g.Emoji = ""
	}
	return &g, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
