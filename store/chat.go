package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/flowgate/types"
)

// ChatTurn is one user query and the assistant reply a dispatch produced.
type ChatTurn struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    string `gorm:"index;size:64"`
	AppID     string `gorm:"index;size:64"`
	TeamID    string `gorm:"size:64"`
	Query     string
	Response  string
	// ResponsesJSON is the serialized per-node response list.
	ResponsesJSON string
	// ErrorMsg is set when the dispatch terminated with an error; failed
	// runs still record their partial responses and spend.
	ErrorMsg  string
	CreatedAt time.Time
}

// UsageEntry is one node's billing record within a dispatch.
type UsageEntry struct {
	ID           uint   `gorm:"primaryKey"`
	ChatID       string `gorm:"index;size:64"`
	AppID        string `gorm:"index;size:64"`
	TeamID       string `gorm:"size:64"`
	NodeID       string `gorm:"size:64"`
	NodeName     string
	Model        string `gorm:"size:64"`
	InputTokens  int
	OutputTokens int
	TotalPoints  float64
	CreatedAt    time.Time
}

// ChatStore persists completed dispatch turns and their usage ledger.
type ChatStore struct {
	db *gorm.DB
}

// NewChatStore wraps an open database handle.
func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

// SaveTurn writes the turn and its usage entries in one transaction.
func (s *ChatStore) SaveTurn(ctx context.Context, turn *ChatTurn, usages []types.NodeUsage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(turn).Error; err != nil {
			return fmt.Errorf("save chat turn: %w", err)
		}
		for _, u := range usages {
			entry := &UsageEntry{
				ChatID:       turn.ChatID,
				AppID:        turn.AppID,
				TeamID:       turn.TeamID,
				NodeID:       u.NodeID,
				NodeName:     u.NodeName,
				Model:        u.Model,
				InputTokens:  u.InputTokens,
				OutputTokens: u.OutputTokens,
				TotalPoints:  u.TotalPoints,
			}
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("save usage entry: %w", err)
			}
		}
		return nil
	})
}

// History returns the chat's last turns as history items, oldest first.
func (s *ChatStore) History(ctx context.Context, chatID string, limit int) ([]types.ChatItem, error) {
	if limit <= 0 {
		limit = 30
	}
	var turns []ChatTurn
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	items := make([]types.ChatItem, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		items = append(items,
			types.ChatItem{Obj: types.RoleHuman, Value: []types.AssistantContent{types.TextAssistantContent(t.Query)}},
			types.ChatItem{Obj: types.RoleAI, Value: []types.AssistantContent{types.TextAssistantContent(t.Response)}},
		)
	}
	return items, nil
}

// TotalPoints sums the team's spend since the given time.
func (s *ChatStore) TotalPoints(ctx context.Context, teamID string, since time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).
		Model(&UsageEntry{}).
		Select("COALESCE(SUM(total_points), 0)").
		Where("team_id = ? AND created_at >= ?", teamID, since).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}
	return total, nil
}

// EncodeResponses serializes node responses for the turn record.
func EncodeResponses(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
