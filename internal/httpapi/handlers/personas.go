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

type personaReq struct {
	Name         string `json:"name" binding:"required"`
	SystemPrompt string `json:"system_prompt" binding:"required"`
	IsDefault    bool   `json:"is_default"`
}

func (h *Handler) CreatePersona(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req personaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	now := time.Now()
	p := &model.Persona{
		ID:           ids.New(),
		UserID:       uid,
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Store.CreatePersona(c.Request.Context(), p); err != nil {
		h.failErr(c, err)
		return
	}
	if req.IsDefault {
		if err := h.Store.SetDefaultPersona(c.Request.Context(), uid, p.ID); err != nil {
			h.failErr(c, err)
			return
		}
		p.IsDefault = true
	}
	common.OK(c, gin.H{"persona": p})
}

func (h *Handler) ListPersonas(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	personas, err := h.Store.ListPersonas(c.Request.Context(), uid)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"personas": personas})
}

type updatePersonaReq struct {
	Name         *string `json:"name"`
	SystemPrompt *string `json:"system_prompt"`
}

func (h *Handler) UpdatePersona(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req updatePersonaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	patch := store.PersonaPatch{Name: req.Name, SystemPrompt: req.SystemPrompt}
	if err := h.Store.UpdatePersona(c.Request.Context(), uid, c.Param("id"), patch); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) DeletePersona(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := h.Store.DeletePersona(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) SetDefaultPersona(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := h.Store.SetDefaultPersona(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}
