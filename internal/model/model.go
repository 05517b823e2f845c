package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList is a JSON-encoded list column (enabled tool ids).
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

// TokenUsage carries the usage figures from a finished generation.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	ReasoningTokens  int `json:"reasoningTokens,omitempty"`
}

// Metadata is the optional per-message metadata blob.
type Metadata struct {
	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`
	ModelID    string      `json:"modelId,omitempty"`
	ProviderID string      `json:"providerId,omitempty"`
}

func (m Metadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *Metadata) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("model: cannot scan %T into JSON column", src)
	}
}

type Conversation struct {
	ID             string     `gorm:"primaryKey;size:26" json:"id"`
	UserID         string     `gorm:"size:64;index:idx_conv_user_updated,priority:1;not null" json:"-"`
	Title          string     `gorm:"size:256;not null" json:"title"`
	ActiveBranchID string     `gorm:"size:26;not null" json:"active_branch_id"`
	ModelID        string     `gorm:"size:64;not null" json:"model_id"`
	ProviderID     string     `gorm:"size:32;not null" json:"provider_id"`
	PersonaID      *string    `gorm:"size:26" json:"persona_id,omitempty"`
	EnabledTools   StringList `gorm:"type:text" json:"enabled_tools"`
	ProjectID      *string    `gorm:"size:26;index" json:"project_id,omitempty"`
	ShareToken     *string    `gorm:"size:64;index" json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `gorm:"index:idx_conv_user_updated,priority:2" json:"updated_at"`
	PinnedAt       *time.Time `json:"pinned_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// Branch is one conversational lineage. ParentBranchID and ForkMessageID are
// both set (a fork) or both empty (the root branch); nothing else is valid.
type Branch struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	ConversationID string    `gorm:"size:26;index;not null" json:"conversation_id"`
	ParentBranchID string    `gorm:"size:26" json:"parent_branch_id,omitempty"`
	ForkMessageID  string    `gorm:"size:26" json:"fork_message_id,omitempty"`
	Name           string    `gorm:"size:128" json:"name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Branch) TableName() string { return "branches" }

// IsRoot reports whether the branch diverges from no ancestor.
func (b *Branch) IsRoot() bool {
	return b.ParentBranchID == "" || b.ForkMessageID == ""
}

// Message is immutable once created; edits are delete-and-resubmit.
type Message struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	ConversationID string    `gorm:"size:26;not null;index:idx_msg_branch,priority:1" json:"conversation_id"`
	BranchID       string    `gorm:"size:26;not null;index:idx_msg_branch,priority:2" json:"branch_id"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Parts          Parts     `gorm:"type:text;not null" json:"parts"`
	Metadata       *Metadata `gorm:"type:text" json:"metadata,omitempty"`
	ModelID        string    `gorm:"size:64" json:"model_id,omitempty"`
	ProviderID     string    `gorm:"size:32" json:"provider_id,omitempty"`
	CreatedAt      time.Time `gorm:"index:idx_msg_branch,priority:3" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

type Persona struct {
	ID           string    `gorm:"primaryKey;size:26" json:"id"`
	UserID       string    `gorm:"size:64;index;not null" json:"-"`
	Name         string    `gorm:"size:128;not null" json:"name"`
	SystemPrompt string    `gorm:"type:text;not null" json:"system_prompt"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Persona) TableName() string { return "personas" }

type Project struct {
	ID           string     `gorm:"primaryKey;size:26" json:"id"`
	UserID       string     `gorm:"size:64;index;not null" json:"-"`
	Name         string     `gorm:"size:128;not null" json:"name"`
	Description  string     `gorm:"type:text" json:"description,omitempty"`
	Instructions string     `gorm:"type:text" json:"instructions,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	PinnedAt     *time.Time `json:"pinned_at,omitempty"`
}

func (Project) TableName() string { return "projects" }

// File is an attachment record scoped to a conversation or a project.
type File struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	UserID         string    `gorm:"size:64;index;not null" json:"-"`
	ConversationID *string   `gorm:"size:26;index" json:"conversation_id,omitempty"`
	ProjectID      *string   `gorm:"size:26;index" json:"project_id,omitempty"`
	MessageID      *string   `gorm:"size:26" json:"message_id,omitempty"`
	Name           string    `gorm:"size:256;not null" json:"name"`
	MimeType       string    `gorm:"size:128;not null" json:"mime_type"`
	Size           int64     `gorm:"not null" json:"size"`
	Content        string    `gorm:"type:text" json:"content,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (File) TableName() string { return "files" }
