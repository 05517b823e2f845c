package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/personallm/internal/common"
	"github.com/suPer8Hu/personallm/internal/ids"
	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

type projectReq struct {
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
}

func (h *Handler) CreateProject(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req projectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	now := time.Now()
	p := &model.Project{
		ID:           ids.New(),
		UserID:       uid,
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Store.CreateProject(c.Request.Context(), p); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"project": p})
}

func (h *Handler) ListProjects(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	projects, err := h.Store.ListProjects(c.Request.Context(), uid)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"projects": projects})
}

func (h *Handler) GetProject(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	p, err := h.Store.GetProject(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"project": p})
}

type updateProjectReq struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Instructions *string `json:"instructions"`
}

func (h *Handler) UpdateProject(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req updateProjectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	patch := store.ProjectPatch{
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
	}
	if err := h.Store.UpdateProject(c.Request.Context(), uid, c.Param("id"), patch); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

// DeleteProject removes the project and every conversation in it.
func (h *Handler) DeleteProject(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteProject(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}
