package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/suPer8Hu/personallm/internal/store"
)

func TestForkCreatesEmptyBranchAndActivatesIt(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	root := conv.ActiveBranchID
	seedMessage(t, st, conv.ID, root, "user", "m1", 0)
	m2 := seedMessage(t, st, conv.ID, root, "assistant", "m2", time.Second)
	seedMessage(t, st, conv.ID, root, "user", "m3", 2*time.Second)

	b, err := Fork(ctx, st, "u1", conv.ID, root, m2.ID)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if b.ParentBranchID != root || b.ForkMessageID != m2.ID {
		t.Fatalf("branch lineage = (%q, %q), want (%q, %q)", b.ParentBranchID, b.ForkMessageID, root, m2.ID)
	}

	// Nothing is copied; the new branch materializes its prefix lazily.
	own, err := st.MessagesForBranch(ctx, conv.ID, b.ID)
	if err != nil {
		t.Fatalf("messages for fork: %v", err)
	}
	if len(own) != 0 {
		t.Fatalf("fork has %d own messages, want 0", len(own))
	}
	rootMsgs, err := st.MessagesForBranch(ctx, conv.ID, root)
	if err != nil {
		t.Fatalf("messages for root: %v", err)
	}
	if len(rootMsgs) != 3 {
		t.Fatalf("root has %d messages after fork, want 3", len(rootMsgs))
	}

	got, err := st.GetConversation(ctx, "u1", conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.ActiveBranchID != b.ID {
		t.Fatalf("active branch = %q, want %q", got.ActiveBranchID, b.ID)
	}

	hist, err := History(ctx, st, conv.ID, b.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantTexts(t, hist, "m1", "m2")
}

func TestForkRejectsForeignMessage(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	root := conv.ActiveBranchID
	m1 := seedMessage(t, st, conv.ID, root, "user", "m1", 0)

	other := seedBranch(t, st, conv.ID, root, m1.ID)
	c1 := seedMessage(t, st, conv.ID, other.ID, "user", "c1", time.Hour)

	// c1 lives on the sibling, not on root.
	if _, err := Fork(ctx, st, "u1", conv.ID, root, c1.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("fork with foreign message: err = %v, want ErrValidation", err)
	}
}

func TestForkOtherUsersConversation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	m1 := seedMessage(t, st, conv.ID, conv.ActiveBranchID, "user", "m1", 0)

	if _, err := Fork(ctx, st, "intruder", conv.ID, conv.ActiveBranchID, m1.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("fork as other user: err = %v, want ErrNotFound", err)
	}
}

func TestEditTruncatesFromTargetInclusive(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	root := conv.ActiveBranchID
	seedMessage(t, st, conv.ID, root, "user", "u1", 0)
	seedMessage(t, st, conv.ID, root, "assistant", "a1", time.Second)
	target := seedMessage(t, st, conv.ID, root, "user", "u2", 2*time.Second)
	seedMessage(t, st, conv.ID, root, "assistant", "a2", 3*time.Second)

	got, err := editTruncate(ctx, st, conv.ID, root, target.ID)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got.ID != target.ID {
		t.Fatalf("returned message = %q, want %q", got.ID, target.ID)
	}

	rest, err := st.MessagesForBranch(ctx, conv.ID, root)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	wantTexts(t, rest, "u1", "a1")
}

func TestEditRejectsInheritedMessage(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	root := conv.ActiveBranchID
	m1 := seedMessage(t, st, conv.ID, root, "user", "m1", 0)
	m2 := seedMessage(t, st, conv.ID, root, "assistant", "m2", time.Second)

	child := seedBranch(t, st, conv.ID, root, m2.ID)
	seedMessage(t, st, conv.ID, child.ID, "user", "c1", time.Hour)

	// m1 is visible in the child's transcript but belongs to the root.
	if _, err := editTruncate(ctx, st, conv.ID, child.ID, m1.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("edit inherited message: err = %v, want ErrValidation", err)
	}
}

func TestEditSweepsEqualTimestamps(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, st, "u1")
	root := conv.ActiveBranchID
	seedMessage(t, st, conv.ID, root, "user", "keep", 0)
	target := seedMessage(t, st, conv.ID, root, "user", "x", time.Second)
	seedMessage(t, st, conv.ID, root, "assistant", "y", time.Second)

	if _, err := editTruncate(ctx, st, conv.ID, root, target.ID); err != nil {
		t.Fatalf("edit: %v", err)
	}
	rest, err := st.MessagesForBranch(ctx, conv.ID, root)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	wantTexts(t, rest, "keep")
}
