// Package gormstore implements the store contract over a gorm connection.
// localstore and remotestore open it against their respective drivers.
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema for every entity table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Conversation{},
		&model.Branch{},
		&model.Message{},
		&model.Persona{},
		&model.Project{},
		&model.File{},
	)
}

func wrapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// Conversations

func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Store) getOwnedConversation(ctx context.Context, userID, id string) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	if c.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetConversation(ctx context.Context, userID, id string) (*model.Conversation, error) {
	return s.getOwnedConversation(ctx, userID, id)
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	var out []model.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) ListConversationsByProject(ctx context.Context, userID, projectID string) ([]model.Conversation, error) {
	var out []model.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Order("updated_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) UpdateConversation(ctx context.Context, userID, id string, patch store.ConversationPatch) error {
	if _, err := s.getOwnedConversation(ctx, userID, id); err != nil {
		return err
	}
	updates := map[string]any{"updated_at": time.Now()}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.ActiveBranchID != nil {
		updates["active_branch_id"] = *patch.ActiveBranchID
	}
	if patch.PersonaID != nil {
		updates["persona_id"] = *patch.PersonaID
	}
	if patch.EnabledTools != nil {
		updates["enabled_tools"] = *patch.EnabledTools
	}
	if patch.ModelID != nil {
		updates["model_id"] = *patch.ModelID
	}
	if patch.ProviderID != nil {
		updates["provider_id"] = *patch.ProviderID
	}
	if patch.Pinned != nil {
		if *patch.Pinned {
			updates["pinned_at"] = time.Now()
		} else {
			updates["pinned_at"] = nil
		}
	}
	if patch.Archived != nil {
		if *patch.Archived {
			updates["archived_at"] = time.Now()
		} else {
			updates["archived_at"] = nil
		}
	}
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) TouchConversation(ctx context.Context, userID, id string) error {
	if _, err := s.getOwnedConversation(ctx, userID, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// DeleteConversation removes children before the conversation row itself and
// is safe to re-run if interrupted partway.
func (s *Store) DeleteConversation(ctx context.Context, userID, id string) error {
	if _, err := s.getOwnedConversation(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Already gone: a re-run of a partial cascade.
			return nil
		}
		return err
	}
	return s.cascadeConversation(ctx, id)
}

func (s *Store) cascadeConversation(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
		return err
	}
	if err := db.Where("conversation_id = ?", id).Delete(&model.Branch{}).Error; err != nil {
		return err
	}
	if err := db.Where("conversation_id = ?", id).Delete(&model.File{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.Conversation{}, "id = ?", id).Error
}

func (s *Store) ConversationByShareToken(ctx context.Context, token string) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.db.WithContext(ctx).First(&c, "share_token = ?", token).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &c, nil
}

func (s *Store) SetShareToken(ctx context.Context, userID, id, token string) error {
	if _, err := s.getOwnedConversation(ctx, userID, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("share_token", token).Error
}

func (s *Store) ClearShareToken(ctx context.Context, userID, id string) error {
	if _, err := s.getOwnedConversation(ctx, userID, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("share_token", nil).Error
}

// Branches

func (s *Store) CreateBranch(ctx context.Context, b *model.Branch) error {
	return s.db.WithContext(ctx).Create(b).Error
}

func (s *Store) GetBranch(ctx context.Context, id string) (*model.Branch, error) {
	var b model.Branch
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &b, nil
}

func (s *Store) BranchesForConversation(ctx context.Context, conversationID string) ([]model.Branch, error) {
	var out []model.Branch
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) RenameBranch(ctx context.Context, id, name string) error {
	res := s.db.WithContext(ctx).Model(&model.Branch{}).
		Where("id = ?", id).
		Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Messages

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	// A confirmation write for an id that already exists is a no-op.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m).Error
}

func (s *Store) MessagesForBranch(ctx context.Context, conversationID, branchID string) ([]model.Message, error) {
	var out []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND branch_id = ?", conversationID, branchID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) DeleteMessagesFrom(ctx context.Context, conversationID, branchID string, from time.Time) error {
	return s.db.WithContext(ctx).
		Where("conversation_id = ? AND branch_id = ? AND created_at >= ?", conversationID, branchID, from).
		Delete(&model.Message{}).Error
}

// Personas

func (s *Store) CreatePersona(ctx context.Context, p *model.Persona) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetPersona(ctx context.Context, userID, id string) (*model.Persona, error) {
	var p model.Persona
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	if p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPersonas(ctx context.Context, userID string) ([]model.Persona, error) {
	var out []model.Persona
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) UpdatePersona(ctx context.Context, userID, id string, patch store.PersonaPatch) error {
	if _, err := s.GetPersona(ctx, userID, id); err != nil {
		return err
	}
	updates := map[string]any{"updated_at": time.Now()}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.SystemPrompt != nil {
		updates["system_prompt"] = *patch.SystemPrompt
	}
	if patch.IsDefault != nil {
		updates["is_default"] = *patch.IsDefault
	}
	return s.db.WithContext(ctx).Model(&model.Persona{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) DeletePersona(ctx context.Context, userID, id string) error {
	if _, err := s.GetPersona(ctx, userID, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&model.Persona{}, "id = ?", id).Error
}

// SetDefaultPersona clears every other default first, then sets the new one.
// The window between the two writes is a known race.
func (s *Store) SetDefaultPersona(ctx context.Context, userID, id string) error {
	if _, err := s.GetPersona(ctx, userID, id); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&model.Persona{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.Persona{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_default": true, "updated_at": time.Now()}).Error
}

// Projects

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetProject(ctx context.Context, userID, id string) (*model.Project, error) {
	var p model.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	if p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	var out []model.Project
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) UpdateProject(ctx context.Context, userID, id string, patch store.ProjectPatch) error {
	if _, err := s.GetProject(ctx, userID, id); err != nil {
		return err
	}
	updates := map[string]any{"updated_at": time.Now()}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Instructions != nil {
		updates["instructions"] = *patch.Instructions
	}
	return s.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteProject cascades every owned conversation, then project files, then
// the project itself. Children before parents; re-runnable.
func (s *Store) DeleteProject(ctx context.Context, userID, id string) error {
	if _, err := s.GetProject(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	db := s.db.WithContext(ctx)

	var convs []model.Conversation
	if err := db.Where("project_id = ?", id).Find(&convs).Error; err != nil {
		return err
	}
	for _, c := range convs {
		if err := s.cascadeConversation(ctx, c.ID); err != nil {
			return err
		}
	}
	if err := db.Where("project_id = ?", id).Delete(&model.File{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.Project{}, "id = ?", id).Error
}

// Files

func (s *Store) CreateFile(ctx context.Context, f *model.File) error {
	return s.db.WithContext(ctx).Create(f).Error
}

func (s *Store) FilesForConversation(ctx context.Context, conversationID string) ([]model.File, error) {
	var out []model.File
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) FilesForProject(ctx context.Context, projectID string) ([]model.File, error) {
	var out []model.File
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) DeleteFile(ctx context.Context, userID, id string) error {
	var f model.File
	if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return wrapErr(err)
	}
	if f.UserID != userID {
		return store.ErrNotFound
	}
	return s.db.WithContext(ctx).Delete(&model.File{}, "id = ?", id).Error
}

// UsageStats

func (s *Store) UsageStats(ctx context.Context, userID string) ([]store.ConversationUsage, error) {
	convs, err := s.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []store.ConversationUsage
	for _, conv := range convs {
		msgs, err := s.MessagesForBranch(ctx, conv.ID, conv.ActiveBranchID)
		if err != nil {
			return nil, err
		}
		u := store.ConversationUsage{
			ConversationID: conv.ID,
			Title:          conv.Title,
			UpdatedAt:      conv.UpdatedAt,
			ModelCounts:    map[string]int{},
		}
		for _, m := range msgs {
			if m.Role != "assistant" {
				continue
			}
			if m.Metadata != nil && m.Metadata.TokenUsage != nil {
				u.PromptTokens += m.Metadata.TokenUsage.PromptTokens
				u.CompletionTokens += m.Metadata.TokenUsage.CompletionTokens
			}
			if m.ModelID != "" {
				u.ModelCounts[m.ModelID]++
			}
		}
		if u.PromptTokens+u.CompletionTokens > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}
