// Package handlers implements the HTTP API over the chat core.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/ai"
	"github.com/suPer8Hu/personallm/internal/chat"
	"github.com/suPer8Hu/personallm/internal/common"
	"github.com/suPer8Hu/personallm/internal/config"
	"github.com/suPer8Hu/personallm/internal/httpapi/middleware"
	"github.com/suPer8Hu/personallm/internal/keyvault"
	"github.com/suPer8Hu/personallm/internal/store"
)

type Handler struct {
	Store    store.Store
	Sessions *chat.Manager
	Registry *ai.Registry
	Vault    *keyvault.Vault // nil when the key vault is disabled
	Cfg      config.Config
	Log      *zap.Logger
}

func NewHandler(st store.Store, sessions *chat.Manager, reg *ai.Registry, vault *keyvault.Vault, cfg config.Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:    st,
		Sessions: sessions,
		Registry: reg,
		Vault:    vault,
		Cfg:      cfg,
		Log:      log,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"status": "up", "backend": h.Cfg.Backend})
}

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// requireUser pulls the caller id or writes the 401 envelope.
func (h *Handler) requireUser(c *gin.Context) (string, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return "", false
	}
	return uid, true
}

// failErr maps domain errors onto the envelope.
func (h *Handler) failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40400, "not found")
	case errors.Is(err, store.ErrAuthenticationRequired):
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	case errors.Is(err, chat.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, chat.ErrGenerationInFlight):
		common.Fail(c, http.StatusConflict, 40900, "a generation is already in flight")
	default:
		h.Log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
