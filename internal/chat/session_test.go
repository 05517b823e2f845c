package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/suPer8Hu/personallm/internal/ai"
	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

// scriptedStream plays back a fixed event sequence. It satisfies both the
// blocking and the streaming provider contracts so it can be registered.
type scriptedStream struct {
	events []ai.StreamEvent
	err    error

	// release, when set, holds the stream open until closed.
	release chan struct{}

	prompt []ai.Message
}

func (p *scriptedStream) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	return "", errors.New("not used")
}

func (p *scriptedStream) StreamChat(ctx context.Context, messages []ai.Message) (<-chan ai.StreamEvent, <-chan error) {
	p.prompt = append([]ai.Message(nil), messages...)
	out := make(chan ai.StreamEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		if p.release != nil {
			select {
			case <-p.release:
			case <-ctx.Done():
				return
			}
		}
		for _, ev := range p.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if p.err != nil {
			errs <- p.err
		}
	}()
	return out, errs
}

func newTestRegistry(p *scriptedStream) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		return p, nil
	})
	return reg
}

func finishEvent(prompt, completion int) ai.StreamEvent {
	return ai.StreamEvent{
		Type:  ai.EventFinish,
		Usage: &ai.Usage{PromptTokens: prompt, CompletionTokens: completion},
	}
}

func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Busy() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session still streaming after 2s")
}

func drain(sub *Submission) {
	for range sub.Events {
	}
}

func TestSubmitBootstrapsConversation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	prov := &scriptedStream{events: []ai.StreamEvent{
		{Type: ai.EventTextDelta, Text: "Hel"},
		{Type: ai.EventTextDelta, Text: "lo"},
		finishEvent(3, 5),
	}}
	s := NewSession(Config{
		Store:      st,
		Registry:   newTestRegistry(prov),
		UserID:     "u1",
		ProviderID: "fake",
		ModelID:    "m1",
	})

	sub, err := s.Submit(ctx, "hi there", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ConversationID == "" || sub.BranchID == "" {
		t.Fatalf("submission missing ids: %+v", sub)
	}
	if sub.Navigation != "/chat/"+sub.ConversationID {
		t.Fatalf("navigation = %q", sub.Navigation)
	}
	drain(sub)
	assistantID, ok := <-sub.AssistantID
	if !ok {
		t.Fatalf("no assistant id delivered: %v", <-sub.Errs)
	}
	waitIdle(t, s)

	conv, err := st.GetConversation(ctx, "u1", sub.ConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.ActiveBranchID != sub.BranchID {
		t.Fatalf("active branch = %q, want %q", conv.ActiveBranchID, sub.BranchID)
	}
	if conv.Title != "New Chat" {
		t.Fatalf("title = %q", conv.Title)
	}

	msgs, err := st.MessagesForBranch(ctx, sub.ConversationID, sub.BranchID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Text() != "hi there" {
		t.Fatalf("user message = %q %q", msgs[0].Role, msgs[0].Text())
	}
	asst := msgs[1]
	if asst.ID != assistantID {
		t.Fatalf("assistant id = %q, want %q", asst.ID, assistantID)
	}
	if asst.Role != "assistant" || asst.Text() != "Hello" {
		t.Fatalf("assistant message = %q %q", asst.Role, asst.Text())
	}
	if asst.Metadata == nil || asst.Metadata.TokenUsage == nil {
		t.Fatalf("assistant metadata missing: %+v", asst.Metadata)
	}
	if asst.Metadata.TokenUsage.PromptTokens != 3 || asst.Metadata.TokenUsage.CompletionTokens != 5 {
		t.Fatalf("token usage = %+v", asst.Metadata.TokenUsage)
	}
	if asst.ModelID != "m1" || asst.ProviderID != "fake" {
		t.Fatalf("assistant provenance = %q %q", asst.ModelID, asst.ProviderID)
	}
}

func TestSubmitSnapshotsHistoryBeforeInsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	seedMessage(t, st, conv.ID, conv.ActiveBranchID, "user", "first", 0)
	seedMessage(t, st, conv.ID, conv.ActiveBranchID, "assistant", "reply", time.Second)

	prov := &scriptedStream{events: []ai.StreamEvent{
		{Type: ai.EventTextDelta, Text: "ok"},
		finishEvent(1, 1),
	}}
	s := NewSession(Config{
		Store:          st,
		Registry:       newTestRegistry(prov),
		UserID:         "u1",
		ConversationID: conv.ID,
		BranchID:       conv.ActiveBranchID,
		ProviderID:     "fake",
		ModelID:        "m1",
		SystemPrompt:   "be brief",
	})

	sub, err := s.Submit(ctx, "second", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(sub)
	<-sub.AssistantID
	waitIdle(t, s)

	// The snapshot was taken before the user insert, so the new user turn
	// appears in the prompt exactly once, at the end.
	want := []ai.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
	}
	if len(prov.prompt) != len(want) {
		t.Fatalf("prompt = %+v, want %+v", prov.prompt, want)
	}
	for i := range want {
		if prov.prompt[i] != want[i] {
			t.Fatalf("prompt[%d] = %+v, want %+v", i, prov.prompt[i], want[i])
		}
	}
}

func TestSubmitRefusedWhileStreaming(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	release := make(chan struct{})
	prov := &scriptedStream{
		release: release,
		events:  []ai.StreamEvent{{Type: ai.EventTextDelta, Text: "x"}, finishEvent(1, 1)},
	}
	s := NewSession(Config{
		Store:      st,
		Registry:   newTestRegistry(prov),
		UserID:     "u1",
		ProviderID: "fake",
		ModelID:    "m1",
	})

	sub, err := s.Submit(ctx, "go", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !s.Busy() {
		t.Fatalf("expected streaming guard to be set")
	}

	if _, err := s.Submit(ctx, "again", nil); !errors.Is(err, ErrGenerationInFlight) {
		t.Fatalf("concurrent submit: err = %v, want ErrGenerationInFlight", err)
	}
	if _, err := s.History(ctx); !errors.Is(err, ErrGenerationInFlight) {
		t.Fatalf("reload while streaming: err = %v, want ErrGenerationInFlight", err)
	}
	if _, err := s.ForkAt(ctx, "any"); !errors.Is(err, ErrGenerationInFlight) {
		t.Fatalf("fork while streaming: err = %v, want ErrGenerationInFlight", err)
	}
	if _, err := s.EditAndResubmit(ctx, "any", "text"); !errors.Is(err, ErrGenerationInFlight) {
		t.Fatalf("edit while streaming: err = %v, want ErrGenerationInFlight", err)
	}

	close(release)
	drain(sub)
	waitIdle(t, s)
	if s.State() != StateIdle {
		t.Fatalf("state = %v, want idle", s.State())
	}
}

func TestStopPersistsNoAssistantMessage(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	release := make(chan struct{}) // never closed: the stream hangs until cancelled
	prov := &scriptedStream{release: release}
	s := NewSession(Config{
		Store:      st,
		Registry:   newTestRegistry(prov),
		UserID:     "u1",
		ProviderID: "fake",
		ModelID:    "m1",
	})

	sub, err := s.Submit(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	s.Stop()
	drain(sub)
	waitIdle(t, s)

	if s.State() != StateIdle {
		t.Fatalf("state = %v, want idle", s.State())
	}
	msgs, err := st.MessagesForBranch(ctx, sub.ConversationID, sub.BranchID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("persisted %d messages after stop, want only the user turn", len(msgs))
	}
}

func TestStreamErrorReleasesGuard(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	prov := &scriptedStream{
		events: []ai.StreamEvent{{Type: ai.EventTextDelta, Text: "par"}},
		err:    errors.New("upstream exploded"),
	}
	s := NewSession(Config{
		Store:      st,
		Registry:   newTestRegistry(prov),
		UserID:     "u1",
		ProviderID: "fake",
		ModelID:    "m1",
	})

	sub, err := s.Submit(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(sub)
	if serr := <-sub.Errs; !errors.Is(serr, ErrStreamFailed) {
		t.Fatalf("stream error = %v, want ErrStreamFailed", serr)
	}
	waitIdle(t, s)
	if s.State() != StateError {
		t.Fatalf("state = %v, want error", s.State())
	}

	msgs, err := st.MessagesForBranch(ctx, sub.ConversationID, sub.BranchID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("persisted %d messages after stream failure, want 1", len(msgs))
	}

	// A later submit on the same session succeeds.
	prov.err = nil
	prov.events = []ai.StreamEvent{{Type: ai.EventTextDelta, Text: "ok"}, finishEvent(1, 1)}
	sub2, err := s.Submit(ctx, "retry", nil)
	if err != nil {
		t.Fatalf("resubmit after failure: %v", err)
	}
	drain(sub2)
	if _, ok := <-sub2.AssistantID; !ok {
		t.Fatalf("resubmit did not finalize: %v", <-sub2.Errs)
	}
	waitIdle(t, s)
}

type assistantRejectingStore struct {
	store.Store
}

func (f *assistantRejectingStore) CreateMessage(ctx context.Context, m *model.Message) error {
	if m.Role == "assistant" {
		return errors.New("disk full")
	}
	return f.Store.CreateMessage(ctx, m)
}

func TestFinalizeFailureReleasesGuard(t *testing.T) {
	st := &assistantRejectingStore{Store: openTestStore(t)}
	ctx := context.Background()
	prov := &scriptedStream{events: []ai.StreamEvent{
		{Type: ai.EventTextDelta, Text: "done"},
		finishEvent(1, 1),
	}}
	s := NewSession(Config{
		Store:      st,
		Registry:   newTestRegistry(prov),
		UserID:     "u1",
		ProviderID: "fake",
		ModelID:    "m1",
	})

	sub, err := s.Submit(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(sub)
	if serr := <-sub.Errs; serr == nil || !strings.Contains(serr.Error(), "disk full") {
		t.Fatalf("finalize error = %v", serr)
	}
	waitIdle(t, s)
	if s.State() != StateError {
		t.Fatalf("state = %v, want error", s.State())
	}
}

func TestEditAndResubmitRewritesTail(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	branch := conv.ActiveBranchID
	target := seedMessage(t, st, conv.ID, branch, "user", "tyop", 0)
	seedMessage(t, st, conv.ID, branch, "assistant", "what?", time.Second)

	prov := &scriptedStream{events: []ai.StreamEvent{
		{Type: ai.EventTextDelta, Text: "better"},
		finishEvent(1, 1),
	}}
	s := NewSession(Config{
		Store:          st,
		Registry:       newTestRegistry(prov),
		UserID:         "u1",
		ConversationID: conv.ID,
		BranchID:       branch,
		ProviderID:     "fake",
		ModelID:        "m1",
	})

	sub, err := s.EditAndResubmit(ctx, target.ID, "typo")
	if err != nil {
		t.Fatalf("edit and resubmit: %v", err)
	}
	drain(sub)
	<-sub.AssistantID
	waitIdle(t, s)

	msgs, err := st.MessagesForBranch(ctx, conv.ID, branch)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	wantTexts(t, msgs, "typo", "better")
}

func TestForkAtSwitchesSessionBranch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	m1 := seedMessage(t, st, conv.ID, conv.ActiveBranchID, "user", "m1", 0)

	s := NewSession(Config{
		Store:          st,
		Registry:       newTestRegistry(&scriptedStream{}),
		UserID:         "u1",
		ConversationID: conv.ID,
		BranchID:       conv.ActiveBranchID,
		ProviderID:     "fake",
		ModelID:        "m1",
	})

	b, err := s.ForkAt(ctx, m1.ID)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if s.BranchID() != b.ID {
		t.Fatalf("session branch = %q, want %q", s.BranchID(), b.ID)
	}
}
