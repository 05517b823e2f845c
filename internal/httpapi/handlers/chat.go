package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/personallm/internal/ai"
	"github.com/suPer8Hu/personallm/internal/chat"
	"github.com/suPer8Hu/personallm/internal/common"
	"github.com/suPer8Hu/personallm/internal/model"
)

type streamChatReq struct {
	ConversationID string       `json:"conversation_id"`
	BranchID       string       `json:"branch_id"`
	ProviderID     string       `json:"provider_id"`
	ModelID        string       `json:"model_id"`
	PersonaID      string       `json:"persona_id"`
	ProjectID      string       `json:"project_id"`
	EnabledTools   []string     `json:"enabled_tools"`
	Text           string       `json:"text" binding:"required"`
	Attachments    []model.Part `json:"attachments"`
}

// StreamChat submits one exchange and streams the generation back as SSE.
// With no conversation_id a conversation and root branch are created first;
// the meta event carries the address to navigate to.
func (h *Handler) StreamChat(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req streamChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.ProviderID == "" || req.ModelID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "provider_id and model_id required")
		return
	}

	s, err := h.session(c, uid, &req)
	if err != nil {
		h.failErr(c, err)
		return
	}
	sub, err := s.Submit(c.Request.Context(), req.Text, req.Attachments)
	if err != nil {
		h.failSubmit(c, s, err)
		return
	}
	h.Sessions.Adopt(s, uid)
	h.streamSSE(c, sub)
}

type editChatReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	BranchID       string `json:"branch_id" binding:"required"`
	MessageID      string `json:"message_id" binding:"required"`
	ProviderID     string `json:"provider_id"`
	ModelID        string `json:"model_id"`
	Text           string `json:"text" binding:"required"`
}

// EditChat rewrites a user turn in place: the branch tail from the target
// message is dropped and the new text is resubmitted, streamed back as SSE.
func (h *Handler) EditChat(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req editChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	s, err := h.session(c, uid, &streamChatReq{
		ConversationID: req.ConversationID,
		BranchID:       req.BranchID,
		ProviderID:     req.ProviderID,
		ModelID:        req.ModelID,
	})
	if err != nil {
		h.failErr(c, err)
		return
	}
	sub, err := s.EditAndResubmit(c.Request.Context(), req.MessageID, req.Text)
	if err != nil {
		h.failSubmit(c, s, err)
		return
	}
	h.streamSSE(c, sub)
}

type stopChatReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	BranchID       string `json:"branch_id"`
}

func (h *Handler) StopChat(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req stopChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	s := h.Sessions.Session(chat.Config{
		UserID:         uid,
		ConversationID: req.ConversationID,
		BranchID:       req.BranchID,
	})
	s.Stop()
	common.OK(c, nil)
}

type forkReq struct {
	BranchID  string `json:"branch_id"`
	MessageID string `json:"message_id" binding:"required"`
}

// ForkConversation opens a new branch diverging at the given message and
// makes it the conversation's active branch.
func (h *Handler) ForkConversation(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req forkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	conversationID := c.Param("id")
	branchID := req.BranchID
	if branchID == "" {
		conv, err := h.Store.GetConversation(c.Request.Context(), uid, conversationID)
		if err != nil {
			h.failErr(c, err)
			return
		}
		branchID = conv.ActiveBranchID
	}
	b, err := chat.Fork(c.Request.Context(), h.Store, uid, conversationID, branchID, req.MessageID)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"branch": b})
}

// session assembles the coordinator config, resolving the system prompt from
// the persona and project the request (or the conversation) points at.
func (h *Handler) session(c *gin.Context, uid string, req *streamChatReq) (*chat.Session, error) {
	ctx := c.Request.Context()

	personaID := req.PersonaID
	projectID := req.ProjectID
	if req.ConversationID != "" {
		conv, err := h.Store.GetConversation(ctx, uid, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if req.ProviderID == "" {
			req.ProviderID = conv.ProviderID
		}
		if req.ModelID == "" {
			req.ModelID = conv.ModelID
		}
		if personaID == "" && conv.PersonaID != nil {
			personaID = *conv.PersonaID
		}
		if projectID == "" && conv.ProjectID != nil {
			projectID = *conv.ProjectID
		}
	}

	var prompt []string
	if personaID != "" {
		persona, err := h.Store.GetPersona(ctx, uid, personaID)
		if err != nil {
			return nil, err
		}
		prompt = append(prompt, persona.SystemPrompt)
	}
	if projectID != "" {
		project, err := h.Store.GetProject(ctx, uid, projectID)
		if err != nil {
			return nil, err
		}
		if project.Instructions != "" {
			prompt = append(prompt, project.Instructions)
		}
	}

	return h.Sessions.Session(chat.Config{
		UserID:         uid,
		ConversationID: req.ConversationID,
		BranchID:       req.BranchID,
		ProviderID:     req.ProviderID,
		ModelID:        req.ModelID,
		EnabledTools:   req.EnabledTools,
		SystemPrompt:   strings.Join(prompt, "\n\n"),
		ProjectID:      projectID,
	}), nil
}

// failSubmit reports a submission error, surfacing any navigation minted
// during bootstrap so the client still lands on the new conversation.
func (h *Handler) failSubmit(c *gin.Context, s *chat.Session, err error) {
	if nav := s.TakeNavigation(); nav != "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    50001,
			"message": err.Error(),
			"data":    gin.H{"navigation": nav},
		})
		return
	}
	h.failErr(c, err)
}

// streamSSE forwards a submission over SSE using event:/data: framing with a
// heartbeat.
func (h *Handler) streamSSE(c *gin.Context, sub *chat.Submission) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"streaming unsupported\"}\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\n", event)
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	writeJSON("meta", gin.H{
		"conversation_id": sub.ConversationID,
		"branch_id":       sub.BranchID,
		"user_message_id": sub.UserMessageID,
		"navigation":      sub.Navigation,
	})

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	ctx := c.Request.Context()
	events, errs, done := sub.Events, sub.Errs, sub.AssistantID

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				if errs == nil && done == nil {
					return
				}
				continue
			}
			writeJSON(string(ev.Type), eventPayload(ev))

		case <-ticker.C:
			writeJSON("ping", gin.H{"ts": time.Now().Unix()})

		case err, ok := <-errs:
			if !ok {
				errs = nil
				if events == nil && done == nil {
					return
				}
				continue
			}
			if err != nil {
				writeJSON("error", gin.H{"message": err.Error()})
				return
			}

		case id, ok := <-done:
			if !ok {
				done = nil
				if events == nil && errs == nil {
					return
				}
				continue
			}
			writeJSON("done", gin.H{"message_id": id})
			return

		case <-ctx.Done():
			return
		}
	}
}

func eventPayload(ev ai.StreamEvent) gin.H {
	p := gin.H{}
	switch ev.Type {
	case ai.EventTextDelta, ai.EventReasoningDelta:
		p["delta"] = ev.Text
	case ai.EventToolInputStart:
		p["tool_call_id"] = ev.ToolCallID
		p["tool_name"] = ev.ToolName
	case ai.EventToolInputDelta:
		p["tool_call_id"] = ev.ToolCallID
		p["input_delta"] = ev.InputDelta
	case ai.EventToolInputAvailable:
		p["tool_call_id"] = ev.ToolCallID
		p["input"] = ev.Input
	case ai.EventToolOutputAvailable:
		p["tool_call_id"] = ev.ToolCallID
		p["output"] = ev.Output
	case ai.EventToolOutputError:
		p["tool_call_id"] = ev.ToolCallID
		p["message"] = ev.ErrorText
	case ai.EventFinish:
		if ev.Usage != nil {
			p["usage"] = gin.H{
				"prompt_tokens":     ev.Usage.PromptTokens,
				"completion_tokens": ev.Usage.CompletionTokens,
				"reasoning_tokens":  ev.Usage.ReasoningTokens,
			}
		}
	}
	return p
}
