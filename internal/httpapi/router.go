package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/common"
	"github.com/suPer8Hu/personallm/internal/config"
	"github.com/suPer8Hu/personallm/internal/httpapi/handlers"
	"github.com/suPer8Hu/personallm/internal/httpapi/middleware"
	"github.com/suPer8Hu/personallm/internal/store/localstore"
)

func NewRouter(h *handlers.Handler, cfg config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)

	// Shared links are public by design.
	r.GET("/share/:token", h.GetShared)

	authGroup := r.Group("/")
	if cfg.Backend == config.BackendRemote {
		authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	} else {
		authGroup.Use(middleware.LocalIdentity(localstore.LocalUserID))
	}

	// Conversations
	authGroup.GET("/conversations", h.ListConversations)
	authGroup.GET("/conversations/:id", h.GetConversation)
	authGroup.PATCH("/conversations/:id", h.UpdateConversation)
	authGroup.DELETE("/conversations/:id", h.DeleteConversation)
	authGroup.GET("/conversations/:id/branches", h.ListBranches)
	authGroup.GET("/conversations/:id/messages", h.GetTranscript)
	authGroup.GET("/conversations/:id/export", h.ExportConversation)
	authGroup.GET("/conversations/:id/files", h.ListConversationFiles)
	authGroup.POST("/conversations/:id/fork", h.ForkConversation)
	authGroup.POST("/conversations/:id/share", h.GenerateShareToken)
	authGroup.DELETE("/conversations/:id/share", h.RevokeShareToken)

	// Branches
	authGroup.PATCH("/branches/:branch_id", h.RenameBranch)

	// Chat (streams over SSE)
	authGroup.POST("/chat/stream", h.StreamChat)
	authGroup.POST("/chat/edit", h.EditChat)
	authGroup.POST("/chat/stop", h.StopChat)

	// Forking someone else's shared conversation still needs an identity.
	authGroup.POST("/share/:token/fork", h.ForkShared)

	// Personas
	authGroup.POST("/personas", h.CreatePersona)
	authGroup.GET("/personas", h.ListPersonas)
	authGroup.PATCH("/personas/:id", h.UpdatePersona)
	authGroup.DELETE("/personas/:id", h.DeletePersona)
	authGroup.POST("/personas/:id/default", h.SetDefaultPersona)

	// Projects
	authGroup.POST("/projects", h.CreateProject)
	authGroup.GET("/projects", h.ListProjects)
	authGroup.GET("/projects/:id", h.GetProject)
	authGroup.PATCH("/projects/:id", h.UpdateProject)
	authGroup.DELETE("/projects/:id", h.DeleteProject)
	authGroup.GET("/projects/:id/files", h.ListProjectFiles)

	// Files
	authGroup.POST("/files", h.UploadFile)
	authGroup.DELETE("/files/:id", h.DeleteFile)

	// Provider keys
	authGroup.PUT("/keys/:provider", h.SetProviderKey)
	authGroup.DELETE("/keys/:provider", h.DeleteProviderKey)
	authGroup.GET("/keys", h.ListProviderKeys)
	authGroup.GET("/keys/:provider/validate", h.ValidateProviderKey)

	authGroup.GET("/usage", h.UsageStats)

	return r
}
