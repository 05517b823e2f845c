package chat

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/suPer8Hu/personallm/internal/ids"
	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

const shareTokenLen = 12

const shareTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

func newShareToken() string {
	buf := make([]byte, shareTokenLen)
	if _, err := rand.Read(buf); err != nil {
		panic("chat: crypto/rand unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = shareTokenAlphabet[int(b)%len(shareTokenAlphabet)]
	}
	return string(buf)
}

// GenerateShareToken mints a fresh unguessable token for the conversation
// and stores it, replacing any previous token. Old share links stop
// resolving once a new token is generated.
func GenerateShareToken(ctx context.Context, st store.Store, userID, conversationID string) (string, error) {
	if _, err := st.GetConversation(ctx, userID, conversationID); err != nil {
		return "", err
	}
	token := newShareToken()
	if err := st.SetShareToken(ctx, userID, conversationID, token); err != nil {
		return "", err
	}
	return token, nil
}

// RevokeShareToken clears the conversation's share token. Existing share
// links stop resolving immediately.
func RevokeShareToken(ctx context.Context, st store.Store, userID, conversationID string) error {
	return st.ClearShareToken(ctx, userID, conversationID)
}

// SharedView is the read-only projection served to anonymous visitors.
type SharedView struct {
	Conversation *model.Conversation `json:"conversation"`
	Messages     []model.Message     `json:"messages"`
}

// ResolveShared looks a conversation up by share token and returns its
// active branch's own messages, flat. No ancestry reconstruction happens
// here: a visitor of a forked branch sees only what lives on that branch.
func ResolveShared(ctx context.Context, st store.Store, token string) (*SharedView, error) {
	conv, err := st.ConversationByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	msgs, err := st.MessagesForBranch(ctx, conv.ID, conv.ActiveBranchID)
	if err != nil {
		return nil, err
	}
	return &SharedView{Conversation: conv, Messages: msgs}, nil
}

// ForkShared deep-copies a shared conversation's active branch into a new
// conversation owned by userID. Message timestamps, parts and metadata are
// preserved so the copy reads identically to the source; the copy gets a
// single root branch regardless of the source's branch tree, and no share
// token of its own.
func ForkShared(ctx context.Context, st store.Store, userID, token string) (*model.Conversation, error) {
	if userID == "" {
		return nil, store.ErrAuthenticationRequired
	}
	source, err := st.ConversationByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:           ids.New(),
		UserID:       userID,
		Title:        "Fork of " + source.Title,
		ModelID:      source.ModelID,
		ProviderID:   source.ProviderID,
		EnabledTools: source.EnabledTools,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := st.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	root := &model.Branch{
		ID:             ids.New(),
		ConversationID: conv.ID,
		CreatedAt:      now,
	}
	if err := st.CreateBranch(ctx, root); err != nil {
		return nil, err
	}
	if err := st.UpdateConversation(ctx, userID, conv.ID, store.ConversationPatch{
		ActiveBranchID: &root.ID,
	}); err != nil {
		return nil, err
	}
	conv.ActiveBranchID = root.ID

	msgs, err := st.MessagesForBranch(ctx, source.ID, source.ActiveBranchID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		copy := &model.Message{
			ID:             ids.New(),
			ConversationID: conv.ID,
			BranchID:       root.ID,
			Role:           m.Role,
			Parts:          m.Parts,
			Metadata:       m.Metadata,
			ModelID:        m.ModelID,
			ProviderID:     m.ProviderID,
			CreatedAt:      m.CreatedAt,
		}
		if err := st.CreateMessage(ctx, copy); err != nil {
			return nil, err
		}
	}
	return conv, nil
}
