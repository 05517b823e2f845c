package chat

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

// editTruncate rewrites a branch in place: it deletes the target message and
// every own-message at or after the target's createdAt, returning the target
// so the caller can resubmit replacement text through the normal submission
// path. The target must be one of the branch's own messages; inherited
// ancestor messages cannot be edited.
func editTruncate(ctx context.Context, st store.Store, conversationID, branchID, messageID string) (*model.Message, error) {
	own, err := st.MessagesForBranch(ctx, conversationID, branchID)
	if err != nil {
		return nil, err
	}

	var target *model.Message
	for i := range own {
		if own[i].ID == messageID {
			target = &own[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: message %s is not an own message of branch %s", ErrValidation, messageID, branchID)
	}

	if err := st.DeleteMessagesFrom(ctx, conversationID, branchID, target.CreatedAt); err != nil {
		return nil, err
	}
	return target, nil
}
