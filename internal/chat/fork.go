package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/suPer8Hu/personallm/internal/ids"
	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

// Fork creates a new branch diverging from forkMessageID on the source
// branch and makes it the conversation's active branch. It copies nothing:
// the new branch starts with zero own messages and its transcript is
// reconstructed on demand. No existing branch, message, or row other than
// the conversation's activeBranchId is touched.
func Fork(ctx context.Context, st store.Store, userID, conversationID, sourceBranchID, forkMessageID string) (*model.Branch, error) {
	if _, err := st.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	src, err := st.GetBranch(ctx, sourceBranchID)
	if err != nil {
		return nil, err
	}
	if src.ConversationID != conversationID {
		return nil, fmt.Errorf("%w: branch %s does not belong to conversation %s", ErrValidation, sourceBranchID, conversationID)
	}

	// The fork point must be one of the source branch's own messages; it only
	// ever references the parent's own set at fork time.
	own, err := st.MessagesForBranch(ctx, conversationID, sourceBranchID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, m := range own {
		if m.ID == forkMessageID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: message %s is not an own message of branch %s", ErrValidation, forkMessageID, sourceBranchID)
	}

	branch := &model.Branch{
		ID:             ids.New(),
		ConversationID: conversationID,
		ParentBranchID: sourceBranchID,
		ForkMessageID:  forkMessageID,
		CreatedAt:      time.Now(),
	}
	if err := st.CreateBranch(ctx, branch); err != nil {
		return nil, err
	}

	if err := st.UpdateConversation(ctx, userID, conversationID, store.ConversationPatch{
		ActiveBranchID: &branch.ID,
	}); err != nil {
		return nil, err
	}
	return branch, nil
}
