package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/personallm/internal/common"
	"github.com/suPer8Hu/personallm/internal/extract"
	"github.com/suPer8Hu/personallm/internal/ids"
	"github.com/suPer8Hu/personallm/internal/model"
)

// UploadFile accepts a multipart upload, extracts its content, and persists
// a file record attached to a conversation or a project.
func (h *Handler) UploadFile(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "no file provided")
		return
	}
	if fh.Size > extract.MaxUploadSize {
		common.Fail(c, http.StatusBadRequest, 10003, "file too large")
		return
	}

	conversationID := c.PostForm("conversation_id")
	projectID := c.PostForm("project_id")
	if conversationID == "" && projectID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "conversation_id or project_id required")
		return
	}
	// Ownership of the attachment target.
	if conversationID != "" {
		if _, err := h.Store.GetConversation(c.Request.Context(), uid, conversationID); err != nil {
			h.failErr(c, err)
			return
		}
	}
	if projectID != "" {
		if _, err := h.Store.GetProject(c.Request.Context(), uid, projectID); err != nil {
			h.failErr(c, err)
			return
		}
	}

	src, err := fh.Open()
	if err != nil {
		h.failErr(c, err)
		return
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, extract.MaxUploadSize+1))
	if err != nil {
		h.failErr(c, err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	result, err := extract.Extract(fh.Filename, mimeType, data)
	if err != nil {
		var ute *extract.UnsupportedTypeError
		if errors.As(err, &ute) {
			common.Fail(c, http.StatusBadRequest, 10004, ute.Error())
			return
		}
		h.failErr(c, err)
		return
	}

	f := &model.File{
		ID:        ids.New(),
		UserID:    uid,
		Name:      result.Name,
		MimeType:  result.MimeType,
		Size:      fh.Size,
		Content:   result.Content,
		CreatedAt: time.Now(),
	}
	if conversationID != "" {
		f.ConversationID = &conversationID
	}
	if projectID != "" {
		f.ProjectID = &projectID
	}
	if err := h.Store.CreateFile(c.Request.Context(), f); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{
		"file":  f,
		"type":  result.Kind,
		"pages": result.Pages,
	})
}

func (h *Handler) ListConversationFiles(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := h.Store.GetConversation(c.Request.Context(), uid, id); err != nil {
		h.failErr(c, err)
		return
	}
	files, err := h.Store.FilesForConversation(c.Request.Context(), id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"files": files})
}

func (h *Handler) ListProjectFiles(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := h.Store.GetProject(c.Request.Context(), uid, id); err != nil {
		h.failErr(c, err)
		return
	}
	files, err := h.Store.FilesForProject(c.Request.Context(), id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"files": files})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteFile(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}
