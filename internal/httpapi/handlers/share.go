package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/personallm/internal/chat"
	"github.com/suPer8Hu/personallm/internal/common"
)

func (h *Handler) GenerateShareToken(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	token, err := chat.GenerateShareToken(c.Request.Context(), h.Store, uid, c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"token": token})
}

func (h *Handler) RevokeShareToken(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := chat.RevokeShareToken(c.Request.Context(), h.Store, uid, c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

// GetShared serves a shared conversation to anonymous visitors.
func (h *Handler) GetShared(c *gin.Context) {
	view, err := chat.ResolveShared(c.Request.Context(), h.Store, c.Param("token"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{
		"conversation": gin.H{
			"id":    view.Conversation.ID,
			"title": view.Conversation.Title,
		},
		"messages": view.Messages,
	})
}

// ForkShared copies a shared conversation into the caller's account.
func (h *Handler) ForkShared(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	conv, err := chat.ForkShared(c.Request.Context(), h.Store, uid, c.Param("token"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": conv.ID})
}
