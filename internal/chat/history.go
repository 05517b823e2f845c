package chat

import (
	"context"
	"errors"

	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

// History reconstructs the flat ordered transcript for a branch by walking
// its ancestry. It is read-only, repeatable, and fails open: a missing
// branch yields an empty transcript and a stale fork reference degrades to
// the parent's whole message set instead of erroring. Only store I/O
// failures return an error.
//
// The fork truncation point is honored only when the immediate parent is the
// root branch. A branch forked from a non-root parent inherits the parent's
// entire reconstructed transcript, ignoring where the fork actually happened.
// That asymmetry is deliberate and load-bearing: callers depend on the
// current shape, so changing it is a product decision, not a bug fix.
func History(ctx context.Context, st store.Store, conversationID, branchID string) ([]model.Message, error) {
	// Segments are collected leaf-first and concatenated in reverse. The
	// visited set guards against corrupted parent chains; the invariants make
	// cycles impossible by construction, but reconstruction must not hang on
	// bad data.
	var segments [][]model.Message
	visited := make(map[string]bool)

	cur := branchID
	for cur != "" && !visited[cur] {
		visited[cur] = true

		branch, err := st.GetBranch(ctx, cur)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				break
			}
			return nil, err
		}

		own, err := st.MessagesForBranch(ctx, conversationID, cur)
		if err != nil {
			return nil, err
		}
		segments = append(segments, own)

		if branch.IsRoot() {
			break
		}

		parent, err := st.GetBranch(ctx, branch.ParentBranchID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		if parent != nil && !parent.IsRoot() {
			// Non-root parent: take its full transcript, fork point ignored.
			cur = branch.ParentBranchID
			continue
		}

		// Root (or vanished) parent: prefix through the fork message, or the
		// parent's entire own set when the fork reference is stale.
		parentMsgs, err := st.MessagesForBranch(ctx, conversationID, branch.ParentBranchID)
		if err != nil {
			return nil, err
		}
		slice := parentMsgs
		for i, m := range parentMsgs {
			if m.ID == branch.ForkMessageID {
				slice = parentMsgs[:i+1]
				break
			}
		}
		segments = append(segments, slice)
		break
	}

	var out []model.Message
	for i := len(segments) - 1; i >= 0; i-- {
		out = append(out, segments[i]...)
	}
	return out, nil
}
