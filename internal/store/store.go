// Package store defines the entity-store contract every higher component
// depends on. Two backends implement it: localstore (embedded sqlite, for
// offline use) and remotestore (mysql plus a redis cache, for authenticated
// synchronized use).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/personallm/internal/model"
)

var (
	// ErrNotFound covers both a missing row and a row owned by someone else;
	// callers cannot distinguish the two.
	ErrNotFound = errors.New("store: not found")

	// ErrAuthenticationRequired rejects operations issued without a caller
	// identity.
	ErrAuthenticationRequired = errors.New("store: authentication required")
)

// ConversationPatch applies the non-nil fields to a conversation and bumps
// its updatedAt.
type ConversationPatch struct {
	Title          *string
	ActiveBranchID *string
	PersonaID      *string
	EnabledTools   *model.StringList
	ModelID        *string
	ProviderID     *string
	Pinned         *bool
	Archived       *bool
}

// PersonaPatch applies the non-nil fields to a persona.
type PersonaPatch struct {
	Name         *string
	SystemPrompt *string
	IsDefault    *bool
}

// ProjectPatch applies the non-nil fields to a project.
type ProjectPatch struct {
	Name         *string
	Description  *string
	Instructions *string
}

// ConversationUsage aggregates assistant token usage over a conversation's
// active branch.
type ConversationUsage struct {
	ConversationID   string         `json:"conversation_id"`
	Title            string         `json:"title"`
	UpdatedAt        time.Time      `json:"updated_at"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	ModelCounts      map[string]int `json:"model_counts"`
}

// Store is the single persistence contract. Ownership is enforced on every
// conversation/persona/project/file mutation and single-entity read; branch
// and message operations are scoped through their conversation by the chat
// layer instead.
type Store interface {
	// Conversations.
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, userID, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	ListConversationsByProject(ctx context.Context, userID, projectID string) ([]model.Conversation, error)
	UpdateConversation(ctx context.Context, userID, id string, patch ConversationPatch) error
	TouchConversation(ctx context.Context, userID, id string) error
	// DeleteConversation removes messages, branches and files before the
	// conversation row itself. Idempotent: safe to re-run after a partial
	// failure, since no cross-row transaction is guaranteed on every backend.
	DeleteConversation(ctx context.Context, userID, id string) error
	ConversationByShareToken(ctx context.Context, token string) (*model.Conversation, error)
	SetShareToken(ctx context.Context, userID, id, token string) error
	ClearShareToken(ctx context.Context, userID, id string) error

	// Branches.
	CreateBranch(ctx context.Context, b *model.Branch) error
	GetBranch(ctx context.Context, id string) (*model.Branch, error)
	BranchesForConversation(ctx context.Context, conversationID string) ([]model.Branch, error)
	RenameBranch(ctx context.Context, id, name string) error

	// Messages.
	// CreateMessage is idempotent on the message id: re-inserting an id that
	// already exists is a no-op, not an error.
	CreateMessage(ctx context.Context, m *model.Message) error
	// MessagesForBranch returns a branch's own messages ordered by createdAt
	// ascending with id as a stable tie-break.
	MessagesForBranch(ctx context.Context, conversationID, branchID string) ([]model.Message, error)
	// DeleteMessagesFrom removes every own-message of the branch with
	// createdAt >= from, inclusive.
	DeleteMessagesFrom(ctx context.Context, conversationID, branchID string, from time.Time) error

	// Personas.
	CreatePersona(ctx context.Context, p *model.Persona) error
	GetPersona(ctx context.Context, userID, id string) (*model.Persona, error)
	ListPersonas(ctx context.Context, userID string) ([]model.Persona, error)
	UpdatePersona(ctx context.Context, userID, id string, patch PersonaPatch) error
	DeletePersona(ctx context.Context, userID, id string) error
	// SetDefaultPersona clears every other default for the owner, then sets
	// the new one. The two steps are not atomic; concurrent calls can leave
	// zero or two defaults. Known race, accepted.
	SetDefaultPersona(ctx context.Context, userID, id string) error

	// Projects.
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, userID, id string) (*model.Project, error)
	ListProjects(ctx context.Context, userID string) ([]model.Project, error)
	UpdateProject(ctx context.Context, userID, id string, patch ProjectPatch) error
	// DeleteProject cascades through every owned conversation (full
	// conversation cascade each), project files, then the project row.
	DeleteProject(ctx context.Context, userID, id string) error

	// Files.
	CreateFile(ctx context.Context, f *model.File) error
	FilesForConversation(ctx context.Context, conversationID string) ([]model.File, error)
	FilesForProject(ctx context.Context, projectID string) ([]model.File, error)
	DeleteFile(ctx context.Context, userID, id string) error

	// UsageStats sums assistant token usage per conversation (active branch
	// only), skipping conversations with no recorded usage.
	UsageStats(ctx context.Context, userID string) ([]ConversationUsage, error)
}
