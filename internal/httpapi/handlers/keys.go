package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/personallm/internal/common"
	"github.com/suPer8Hu/personallm/internal/keyvault"
)

type setKeyReq struct {
	APIKey string `json:"api_key" binding:"required"`
}

// SetProviderKey seals a provider API key into the vault.
func (h *Handler) SetProviderKey(c *gin.Context) {
	if _, ok := h.requireUser(c); !ok {
		return
	}
	if h.Vault == nil {
		common.Fail(c, http.StatusNotImplemented, 50100, "key vault disabled")
		return
	}
	var req setKeyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Vault.Set(c.Param("provider"), req.APIKey); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) DeleteProviderKey(c *gin.Context) {
	if _, ok := h.requireUser(c); !ok {
		return
	}
	if h.Vault == nil {
		common.Fail(c, http.StatusNotImplemented, 50100, "key vault disabled")
		return
	}
	if err := h.Vault.Delete(c.Param("provider")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, nil)
}

// ListProviderKeys reports which providers have a stored key, never the
// keys themselves.
func (h *Handler) ListProviderKeys(c *gin.Context) {
	if _, ok := h.requireUser(c); !ok {
		return
	}
	if h.Vault == nil {
		common.OK(c, gin.H{"providers": []string{}})
		return
	}
	common.OK(c, gin.H{"providers": h.Vault.Providers()})
}

// ValidateProviderKey checks that a stored key decrypts cleanly.
func (h *Handler) ValidateProviderKey(c *gin.Context) {
	if _, ok := h.requireUser(c); !ok {
		return
	}
	if h.Vault == nil {
		common.Fail(c, http.StatusNotImplemented, 50100, "key vault disabled")
		return
	}
	_, err := h.Vault.Get(c.Param("provider"))
	switch {
	case err == nil:
		common.OK(c, gin.H{"valid": true})
	case errors.Is(err, keyvault.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40400, "no key stored")
	default:
		common.OK(c, gin.H{"valid": false})
	}
}
