package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/suPer8Hu/personallm/internal/store"
)

func TestShareTokenRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	seedMessage(t, st, conv.ID, conv.ActiveBranchID, "user", "hello", 0)
	seedMessage(t, st, conv.ID, conv.ActiveBranchID, "assistant", "hi", time.Second)

	token, err := GenerateShareToken(ctx, st, "u1", conv.ID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if len(token) != shareTokenLen {
		t.Fatalf("token %q, want %d chars", token, shareTokenLen)
	}

	view, err := ResolveShared(ctx, st, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if view.Conversation.ID != conv.ID {
		t.Fatalf("resolved conversation %q, want %q", view.Conversation.ID, conv.ID)
	}
	wantTexts(t, view.Messages, "hello", "hi")

	// Regenerating replaces the token; the old link dies.
	token2, err := GenerateShareToken(ctx, st, "u1", conv.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if token2 == token {
		t.Fatalf("regenerated token did not change")
	}
	if _, err := ResolveShared(ctx, st, token); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old token: err = %v, want ErrNotFound", err)
	}
	if _, err := ResolveShared(ctx, st, token2); err != nil {
		t.Fatalf("new token: %v", err)
	}
}

func TestShareTokenOwnership(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")

	if _, err := GenerateShareToken(ctx, st, "intruder", conv.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("generate as other user: err = %v, want ErrNotFound", err)
	}
}

func TestRevokeShareToken(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")

	token, err := GenerateShareToken(ctx, st, "u1", conv.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := RevokeShareToken(ctx, st, "u1", conv.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := ResolveShared(ctx, st, token); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("revoked token: err = %v, want ErrNotFound", err)
	}
}

func TestResolveSharedIsFlatActiveBranch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	root := conv.ActiveBranchID
	m1 := seedMessage(t, st, conv.ID, root, "user", "m1", 0)
	seedMessage(t, st, conv.ID, root, "assistant", "m2", time.Second)

	// Activate a fork; a visitor sees only the fork's own messages, without
	// the inherited prefix.
	fork, err := Fork(ctx, st, "u1", conv.ID, root, m1.ID)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	seedMessage(t, st, conv.ID, fork.ID, "user", "c1", time.Hour)

	token, err := GenerateShareToken(ctx, st, "u1", conv.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	view, err := ResolveShared(ctx, st, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantTexts(t, view.Messages, "c1")
}

func TestForkSharedDeepCopy(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "owner")
	branch := conv.ActiveBranchID
	seedMessage(t, st, conv.ID, branch, "user", "q", 0)
	src := seedMessage(t, st, conv.ID, branch, "assistant", "a", time.Second)

	token, err := GenerateShareToken(ctx, st, "owner", conv.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	copyConv, err := ForkShared(ctx, st, "visitor", token)
	if err != nil {
		t.Fatalf("fork shared: %v", err)
	}
	if copyConv.UserID != "visitor" {
		t.Fatalf("copy owner = %q", copyConv.UserID)
	}
	if copyConv.Title != "Fork of Test" {
		t.Fatalf("copy title = %q", copyConv.Title)
	}
	if copyConv.ShareToken != nil {
		t.Fatalf("copy inherited a share token")
	}

	msgs, err := st.MessagesForBranch(ctx, copyConv.ID, copyConv.ActiveBranchID)
	if err != nil {
		t.Fatalf("copy messages: %v", err)
	}
	wantTexts(t, msgs, "q", "a")
	if msgs[1].ID == src.ID {
		t.Fatalf("copied message kept the source id")
	}
	if !msgs[1].CreatedAt.Equal(src.CreatedAt) {
		t.Fatalf("copied createdAt = %v, want %v", msgs[1].CreatedAt, src.CreatedAt)
	}

	// Source untouched.
	srcMsgs, err := st.MessagesForBranch(ctx, conv.ID, branch)
	if err != nil {
		t.Fatalf("source messages: %v", err)
	}
	if len(srcMsgs) != 2 {
		t.Fatalf("source has %d messages after fork, want 2", len(srcMsgs))
	}
}

func TestForkSharedRequiresIdentity(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "owner")
	token, err := GenerateShareToken(ctx, st, "owner", conv.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ForkShared(ctx, st, "", token); !errors.Is(err, store.ErrAuthenticationRequired) {
		t.Fatalf("anonymous fork: err = %v, want ErrAuthenticationRequired", err)
	}
}
