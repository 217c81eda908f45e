package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/models"
	"github.com/samuell19/megazord-ai/internal/provider"
)

// callLog records the order in which collaborators are invoked.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) index(call string) int {
	for i, c := range l.list() {
		if c == call {
			return i
		}
	}
	return -1
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.list() {
		if c == call {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------

type fakeAgents struct {
	log    *callLog
	agents map[string]*models.Agent
}

func (f *fakeAgents) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	f.log.add("GetAgent")
	a, ok := f.agents[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "agent: not found: %s", id)
	}
	cp := *a
	return &cp, nil
}

// ---------------------------------------------------------------------------

type fakeStore struct {
	log *callLog

	mu       sync.Mutex
	seq      int
	sessions map[string]*models.Session
	messages []*models.Message

	appendErr   func(msg *models.Message) error
	touchErr    error
	annotateErr error
	applyErr    error
}

func newFakeStore(log *callLog) *fakeStore {
	return &fakeStore{log: log, sessions: map[string]*models.Session{}}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) addSession(s models.Session) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := s
	f.sessions[s.ID] = &cp
	return &cp
}

// seedMessage appends a message without recording a call.
func (f *fakeStore) seedMessage(sessionID string, role models.Role, content string, failed bool) *models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &models.Message{ID: f.nextID("m"), SessionID: sessionID, Role: role, Content: content, Sequence: f.maxSeq(sessionID) + 1}
	if failed {
		reason := "earlier failure"
		m.Error = &reason
	}
	f.messages = append(f.messages, m)
	return m
}

func (f *fakeStore) maxSeq(sessionID string) int {
	n := 0
	for _, m := range f.messages {
		if m.SessionID == sessionID && m.Sequence > n {
			n = m.Sequence
		}
	}
	return n
}

func (f *fakeStore) sessionMessages(sessionID string) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (f *fakeStore) session(id string) models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.sessions[id]
}

func (f *fakeStore) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeStore) CreateSession(ctx context.Context, agentID, userID string) (*models.Session, error) {
	f.log.add("CreateSession")
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &models.Session{ID: f.nextID("s"), AgentID: agentID, UserID: userID, Title: "New conversation", IsActive: true}
	f.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	f.log.add("GetSession")
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "session: not found: %s", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	f.log.add("TouchSession")
	if f.touchErr != nil {
		return f.touchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].LastMessageAt = &at
	return nil
}

func (f *fakeStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	f.log.add("CountMessages")
	return len(f.sessionMessages(sessionID)), nil
}

func (f *fakeStore) ApplyGenerated(ctx context.Context, id, title, description, emoji string) error {
	f.log.add("ApplyGenerated")
	if f.applyErr != nil {
		return f.applyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	s.Title, s.Description, s.Emoji, s.TitleGenerated = title, description, emoji, true
	return nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	f.log.add("AppendMessage:" + string(msg.Role))
	if f.appendErr != nil {
		if err := f.appendErr(msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = f.nextID("m")
	msg.Sequence = f.maxSeq(msg.SessionID) + 1
	msg.CreatedAt = time.Now()
	cp := *msg
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeStore) RecentMessages(ctx context.Context, sessionID string, before, limit int) ([]models.Message, error) {
	f.log.add("RecentMessages")
	var usable []models.Message
	for _, m := range f.sessionMessages(sessionID) {
		if m.Failed() || (before > 0 && m.Sequence >= before) {
			continue
		}
		usable = append(usable, m)
	}
	if len(usable) > limit {
		usable = usable[len(usable)-limit:]
	}
	return usable, nil
}

func (f *fakeStore) AnnotateMessage(ctx context.Context, id, reason string) error {
	f.log.add("AnnotateMessage")
	if f.annotateErr != nil {
		return f.annotateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			r := reason
			m.Error = &r
			return nil
		}
	}
	return apperr.New(apperr.KindNotFound, "message not found")
}

// ---------------------------------------------------------------------------

type fakeCredentials struct {
	log  *callLog
	keys map[string]string
	err  error
}

func (f *fakeCredentials) Resolve(ctx context.Context, userID string) (string, error) {
	f.log.add("Resolve")
	if f.err != nil {
		return "", f.err
	}
	key, ok := f.keys[userID]
	if !ok {
		return "", apperr.New(apperr.KindConfiguration, "API key not configured")
	}
	return key, nil
}

// ---------------------------------------------------------------------------

type completerCall struct {
	credential string
	model      string
	messages   []provider.Message
	ctxErr     error
}

type fakeCompleter struct {
	log *callLog

	mu    sync.Mutex
	calls []completerCall

	// reply answers exchange calls; metadata answers title generation.
	reply    func(messages []provider.Message) (*provider.Result, error)
	metadata func(messages []provider.Message) (*provider.Result, error)
}

func (f *fakeCompleter) Send(ctx context.Context, credential, model string, messages []provider.Message) (*provider.Result, error) {
	isMetadata := len(messages) > 0 && messages[0].Content == metadataInstruction
	if isMetadata {
		f.log.add("SendMetadata")
	} else {
		f.log.add("Send")
	}
	f.mu.Lock()
	f.calls = append(f.calls, completerCall{credential: credential, model: model, messages: messages, ctxErr: ctx.Err()})
	f.mu.Unlock()

	if isMetadata {
		if f.metadata == nil {
			return &provider.Result{Content: `{"title":"Generated","description":"A chat","emoji":"🤖"}`, Model: model}, nil
		}
		return f.metadata(messages)
	}
	if f.reply == nil {
		return &provider.Result{
			ID:           "gen-1",
			Content:      "Hello from the model",
			Model:        model,
			FinishReason: "stop",
			Usage:        &provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}
	return f.reply(messages)
}

func (f *fakeCompleter) exchangeCalls() []completerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []completerCall
	for _, c := range f.calls {
		if len(c.messages) == 0 || c.messages[0].Content != metadataInstruction {
			out = append(out, c)
		}
	}
	return out
}
