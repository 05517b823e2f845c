// Package chat holds the branching-conversation core: the history
// reconstructor, the fork and edit engines, the share engine, and the
// session coordinator that drives one live generation.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/ai"
	"github.com/suPer8Hu/personallm/internal/ids"
	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

// State is the coordinator's position in the generation lifecycle.
type State int32

const (
	StateIdle State = iota
	StateAwaitingConversation
	StateSubmitting
	StateStreaming
	StateFinalizing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConversation:
		return "awaiting-conversation"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// TitleJob asks the worker to derive a short title for a fresh conversation.
type TitleJob struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Text           string `json:"text"`
}

// TitleQueue publishes auto-title jobs. Publishing is best-effort; the
// session swallows failures.
type TitleQueue interface {
	PublishTitle(ctx context.Context, job TitleJob) error
}

// Config assembles a session's collaborators and ambient selection state.
// ConversationID/BranchID may be empty: the first submit then bootstraps a
// conversation with its root branch.
type Config struct {
	Store    store.Store
	Registry *ai.Registry
	Titles   TitleQueue
	Log      *zap.Logger

	UserID         string
	ConversationID string
	BranchID       string
	ProviderID     string
	ModelID        string
	EnabledTools   []string
	SystemPrompt   string
	ProjectID      string
}

// Session coordinates one live generation for one (conversation, branch)
// client context. It is the sole writer of transcript state while its
// streaming guard is set: submit, fork, edit and transcript reloads are all
// refused until the generation finishes, fails, or is cancelled.
type Session struct {
	st     store.Store
	reg    *ai.Registry
	titles TitleQueue
	log    *zap.Logger

	mu                sync.Mutex
	state             State
	streaming         bool
	cancel            context.CancelFunc
	userID            string
	conversationID    string
	branchID          string
	providerID        string
	modelID           string
	enabledTools      model.StringList
	systemPrompt      string
	projectID         string
	pendingNavigation string
	lastErr           error
}

func NewSession(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		st:             cfg.Store,
		reg:            cfg.Registry,
		titles:         cfg.Titles,
		log:            log,
		userID:         cfg.UserID,
		conversationID: cfg.ConversationID,
		branchID:       cfg.BranchID,
		providerID:     cfg.ProviderID,
		modelID:        cfg.ModelID,
		enabledTools:   cfg.EnabledTools,
		systemPrompt:   cfg.SystemPrompt,
		projectID:      cfg.ProjectID,
		state:          StateIdle,
	}
}

// Submission is the handle for one in-flight generation. Events forwards
// every stream update for rendering; AssistantID delivers the persisted
// assistant message id on success; Errs delivers at most one terminal error.
// All three close when the generation ends.
type Submission struct {
	ConversationID string
	BranchID       string
	UserMessageID  string
	Navigation     string

	Events      <-chan ai.StreamEvent
	AssistantID <-chan string
	Errs        <-chan error
}

// Busy reports whether a generation is streaming. While true, submit, fork,
// edit and reloads are refused.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) BranchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.branchID
}

func (s *Session) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// TakeNavigation returns and clears the pending navigation target. It is
// delivered whether the generation succeeded or failed, so a caller that hit
// an error after bootstrap still lands on the new conversation.
func (s *Session) TakeNavigation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	nav := s.pendingNavigation
	s.pendingNavigation = ""
	return nav
}

// Submit runs one exchange: ensure a conversation/branch context exists,
// snapshot the reconstructed transcript, insert the user message, kick off
// the stream, and hand back a Submission. Cancelling ctx stops the stream;
// nothing is persisted for a cancelled generation.
func (s *Session) Submit(ctx context.Context, text string, attachments []model.Part) (*Submission, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrGenerationInFlight
	}
	if s.conversationID == "" {
		s.state = StateAwaitingConversation
	} else {
		s.state = StateSubmitting
	}
	s.mu.Unlock()

	convID, branchID, err := s.ensureContext(ctx)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.setState(StateSubmitting)

	// Snapshot before inserting the user message: a background subscription
	// echoing the insert back must not double-count it.
	history, err := History(ctx, s.st, convID, branchID)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	parts := model.Parts{model.TextPart(text)}
	parts = append(parts, attachments...)
	userMsg := &model.Message{
		ID:             ids.New(),
		ConversationID: convID,
		BranchID:       branchID,
		Role:           "user",
		Parts:          parts,
		CreatedAt:      time.Now(),
	}
	if err := s.st.CreateMessage(ctx, userMsg); err != nil {
		s.fail(err)
		return nil, err
	}

	if len(history) == 0 {
		s.publishTitle(convID, text)
	}

	sp, err := s.reg.GetStream(ctx, s.providerID, s.modelID)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	prompt := buildPrompt(s.systemPrompt, history, userMsg)

	sctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.streaming = true
	s.state = StateStreaming
	s.cancel = cancel
	nav := s.pendingNavigation
	s.pendingNavigation = ""
	s.mu.Unlock()

	out := make(chan ai.StreamEvent, 16)
	assistantID := make(chan string, 1)
	errsOut := make(chan error, 1)

	go s.consume(sctx, cancel, sp, prompt, convID, branchID, out, assistantID, errsOut)

	return &Submission{
		ConversationID: convID,
		BranchID:       branchID,
		UserMessageID:  userMsg.ID,
		Navigation:     nav,
		Events:         out,
		AssistantID:    assistantID,
		Errs:           errsOut,
	}, nil
}

// EditAndResubmit truncates the branch's tail from the target message on and
// resubmits newText through the normal submission path. The branch is
// rewritten in place; no new branch is created.
func (s *Session) EditAndResubmit(ctx context.Context, messageID, newText string) (*Submission, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrGenerationInFlight
	}
	convID, branchID := s.conversationID, s.branchID
	s.mu.Unlock()

	if convID == "" || branchID == "" {
		return nil, fmt.Errorf("%w: no active conversation to edit", ErrValidation)
	}
	if _, err := editTruncate(ctx, s.st, convID, branchID, messageID); err != nil {
		return nil, err
	}
	return s.Submit(ctx, newText, nil)
}

// ForkAt creates a branch diverging at messageID on the current branch and
// switches the session (and the conversation's active branch) to it.
func (s *Session) ForkAt(ctx context.Context, messageID string) (*model.Branch, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrGenerationInFlight
	}
	convID, branchID := s.conversationID, s.branchID
	s.mu.Unlock()

	if convID == "" || branchID == "" {
		return nil, fmt.Errorf("%w: no active conversation to fork", ErrValidation)
	}
	b, err := Fork(ctx, s.st, s.userID, convID, branchID, messageID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.branchID = b.ID
	s.mu.Unlock()
	return b, nil
}

// History returns the session's reconstructed transcript. Refused while a
// generation is streaming: the coordinator is the sole writer of transcript
// state until the guard clears, so a background reload here would clobber
// the optimistic partially-streamed assistant message.
func (s *Session) History(ctx context.Context) ([]model.Message, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrGenerationInFlight
	}
	convID, branchID := s.conversationID, s.branchID
	userID := s.userID
	s.mu.Unlock()

	if convID == "" {
		return nil, nil
	}
	if branchID == "" {
		conv, err := s.st.GetConversation(ctx, userID, convID)
		if err != nil {
			return nil, err
		}
		branchID = conv.ActiveBranchID
		s.mu.Lock()
		s.branchID = branchID
		s.mu.Unlock()
	}
	return History(ctx, s.st, convID, branchID)
}

// Stop aborts the in-flight generation, if any. The stream goroutine
// observes the cancellation, persists nothing, and returns the session to
// idle; partially rendered content is discarded on the next reload.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) ensureContext(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	convID, branchID := s.conversationID, s.branchID
	s.mu.Unlock()

	if convID == "" {
		now := time.Now()
		conv := &model.Conversation{
			ID:           ids.New(),
			UserID:       s.userID,
			Title:        "New Chat",
			ModelID:      s.modelID,
			ProviderID:   s.providerID,
			EnabledTools: s.enabledTools,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if s.projectID != "" {
			conv.ProjectID = &s.projectID
		}
		if err := s.st.CreateConversation(ctx, conv); err != nil {
			return "", "", err
		}
		root := &model.Branch{
			ID:             ids.New(),
			ConversationID: conv.ID,
			CreatedAt:      now,
		}
		if err := s.st.CreateBranch(ctx, root); err != nil {
			return "", "", err
		}
		// Creation is not complete until the conversation points at its root
		// branch; activeBranchId must never be observed empty afterwards.
		if err := s.st.UpdateConversation(ctx, s.userID, conv.ID, store.ConversationPatch{
			ActiveBranchID: &root.ID,
		}); err != nil {
			return "", "", err
		}

		s.mu.Lock()
		s.conversationID = conv.ID
		s.branchID = root.ID
		s.pendingNavigation = "/chat/" + conv.ID
		s.mu.Unlock()
		return conv.ID, root.ID, nil
	}

	if branchID == "" {
		conv, err := s.st.GetConversation(ctx, s.userID, convID)
		if err != nil {
			return "", "", err
		}
		branchID = conv.ActiveBranchID
		s.mu.Lock()
		s.branchID = branchID
		s.mu.Unlock()
	}
	return convID, branchID, nil
}

func (s *Session) consume(
	ctx context.Context,
	cancel context.CancelFunc,
	sp ai.StreamProvider,
	prompt []ai.Message,
	convID, branchID string,
	out chan<- ai.StreamEvent,
	assistantID chan<- string,
	errsOut chan<- error,
) {
	defer close(out)
	defer close(assistantID)
	defer close(errsOut)
	defer cancel()

	events, perrs := sp.StreamChat(ctx, prompt)

	asm := newPartAssembler()
	var usage *ai.Usage

	for ev := range events {
		if ctx.Err() != nil {
			break
		}
		if ev.Type == ai.EventFinish {
			usage = ev.Usage
		} else {
			asm.apply(ev)
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	if ctx.Err() != nil {
		// Cancelled: no persistence, straight back to idle.
		s.release(StateIdle, nil)
		return
	}

	// The provider closes both channels on exit, so this receive cannot hang.
	if err, ok := <-perrs; ok && err != nil {
		s.release(StateError, err)
		errsOut <- fmt.Errorf("%w: %v", ErrStreamFailed, err)
		return
	}

	s.setState(StateFinalizing)

	// Finalize on a fresh context: a client that disconnects right after the
	// finish event must not lose the completed assistant message.
	fctx, fcancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer fcancel()

	meta := &model.Metadata{ModelID: s.modelID, ProviderID: s.providerID}
	if usage != nil {
		meta.TokenUsage = &model.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			ReasoningTokens:  usage.ReasoningTokens,
		}
	}
	assistant := &model.Message{
		ID:             ids.New(),
		ConversationID: convID,
		BranchID:       branchID,
		Role:           "assistant",
		Parts:          asm.result(),
		Metadata:       meta,
		ModelID:        s.modelID,
		ProviderID:     s.providerID,
		CreatedAt:      time.Now(),
	}
	if err := s.st.CreateMessage(fctx, assistant); err != nil {
		// A failed finalize must not leave the session stuck in Streaming.
		s.release(StateError, err)
		errsOut <- err
		return
	}
	if err := s.st.TouchConversation(fctx, s.userID, convID); err != nil {
		s.log.Warn("touch conversation failed", zap.String("conversation", convID), zap.Error(err))
	}

	assistantID <- assistant.ID
	s.release(StateIdle, nil)
}

func (s *Session) publishTitle(convID, text string) {
	if s.titles == nil {
		return
	}
	if len(text) > 200 {
		text = text[:200]
	}
	job := TitleJob{ConversationID: convID, UserID: s.userID, Text: text}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.titles.PublishTitle(ctx, job); err != nil {
			// Best-effort; never surfaced to the user.
			s.log.Debug("auto-title publish failed", zap.String("conversation", convID), zap.Error(err))
		}
	}()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) release(st State, err error) {
	s.mu.Lock()
	s.streaming = false
	s.cancel = nil
	s.state = st
	s.lastErr = err
	s.mu.Unlock()
}

func buildPrompt(systemPrompt string, history []model.Message, userMsg *model.Message) []ai.Message {
	out := make([]ai.Message, 0, len(history)+2)
	if systemPrompt != "" {
		out = append(out, ai.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		if t := m.Text(); t != "" {
			out = append(out, ai.Message{Role: m.Role, Content: t})
		}
	}
	out = append(out, ai.Message{Role: "user", Content: userMsg.Text()})
	return out
}
