package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/chat"
	"github.com/suPer8Hu/personallm/internal/common"
	"github.com/suPer8Hu/personallm/internal/export"
	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

func (h *Handler) ListConversations(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var (
		convs []model.Conversation
		err   error
	)
	if projectID := c.Query("project_id"); projectID != "" {
		convs, err = h.Store.ListConversationsByProject(c.Request.Context(), uid, projectID)
	} else {
		convs, err = h.Store.ListConversations(c.Request.Context(), uid)
	}
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"conversations": convs})
}

func (h *Handler) GetConversation(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	conv, err := h.Store.GetConversation(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"conversation": conv})
}

type updateConversationReq struct {
	Title        *string           `json:"title"`
	PersonaID    *string           `json:"persona_id"`
	EnabledTools *model.StringList `json:"enabled_tools"`
	ModelID      *string           `json:"model_id"`
	ProviderID   *string           `json:"provider_id"`
	Pinned       *bool             `json:"pinned"`
	Archived     *bool             `json:"archived"`
}

func (h *Handler) UpdateConversation(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req updateConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	patch := store.ConversationPatch{
		Title:        req.Title,
		PersonaID:    req.PersonaID,
		EnabledTools: req.EnabledTools,
		ModelID:      req.ModelID,
		ProviderID:   req.ProviderID,
		Pinned:       req.Pinned,
		Archived:     req.Archived,
	}
	if err := h.Store.UpdateConversation(c.Request.Context(), uid, c.Param("id"), patch); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteConversation(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) ListBranches(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := h.Store.GetConversation(c.Request.Context(), uid, id); err != nil {
		h.failErr(c, err)
		return
	}
	branches, err := h.Store.BranchesForConversation(c.Request.Context(), id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"branches": branches})
}

type renameBranchReq struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) RenameBranch(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	branch, err := h.Store.GetBranch(c.Request.Context(), c.Param("branch_id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	// Branch access is scoped through its conversation.
	if _, err := h.Store.GetConversation(c.Request.Context(), uid, branch.ConversationID); err != nil {
		h.failErr(c, err)
		return
	}
	var req renameBranchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Store.RenameBranch(c.Request.Context(), branch.ID, req.Name); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

// GetTranscript returns the reconstructed transcript for a branch,
// defaulting to the conversation's active branch.
func (h *Handler) GetTranscript(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	conv, err := h.Store.GetConversation(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	branchID := c.Query("branch_id")
	if branchID == "" {
		branchID = conv.ActiveBranchID
	}
	msgs, err := chat.History(c.Request.Context(), h.Store, conv.ID, branchID)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"branch_id": branchID, "messages": msgs})
}

// ExportConversation streams the transcript as a markdown or json download.
func (h *Handler) ExportConversation(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	conv, err := h.Store.GetConversation(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	format := c.DefaultQuery("format", "md")
	exp, err := export.NewExporter(format)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	}
	msgs, err := chat.History(c.Request.Context(), h.Store, conv.ID, conv.ActiveBranchID)
	if err != nil {
		h.failErr(c, err)
		return
	}

	filename := export.SafeFilename(conv.Title) + "." + exp.Extension()
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if exp.Extension() == "json" {
		c.Header("Content-Type", "application/json")
	} else {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
	}
	c.Status(http.StatusOK)

	t := &export.Transcript{Title: conv.Title, ExportedAt: time.Now(), Messages: msgs}
	if err := exp.Export(t, c.Writer); err != nil {
		h.Log.Error("export failed", zap.Error(err))
	}
}

func (h *Handler) UsageStats(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	stats, err := h.Store.UsageStats(c.Request.Context(), uid)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"usage": stats})
}
