package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowgate/types"
)

func newTestChatStore(t *testing.T) *ChatStore {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return NewChatStore(db)
}

func TestChatStoreSaveTurnAndHistory(t *testing.T) {
	s := newTestChatStore(t)
	ctx := context.Background()

	turns := []struct{ query, response string }{
		{"first question", "first answer"},
		{"second question", "second answer"},
	}
	for _, turn := range turns {
		err := s.SaveTurn(ctx, &ChatTurn{
			ChatID:   "chat-1",
			AppID:    "app-1",
			TeamID:   "team-1",
			Query:    turn.query,
			Response: turn.response,
		}, nil)
		require.NoError(t, err)
	}

	items, err := s.History(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, items, 4)

	// Oldest first, human/ai alternating.
	assert.Equal(t, types.RoleHuman, items[0].Obj)
	assert.Equal(t, "first question", items[0].PlainText())
	assert.Equal(t, types.RoleAI, items[1].Obj)
	assert.Equal(t, "first answer", items[1].PlainText())
	assert.Equal(t, "second answer", items[3].PlainText())
}

func TestChatStoreHistoryLimit(t *testing.T) {
	s := newTestChatStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveTurn(ctx, &ChatTurn{ChatID: "chat-1", Query: "q", Response: "a"}, nil))
	}

	items, err := s.History(ctx, "chat-1", 2)
	require.NoError(t, err)
	// 2 turns, each expanding to a human and an ai item.
	assert.Len(t, items, 4)
}

func TestChatStoreHistoryIsolatesChats(t *testing.T) {
	s := newTestChatStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTurn(ctx, &ChatTurn{ChatID: "chat-1", Query: "mine", Response: "yes"}, nil))
	require.NoError(t, s.SaveTurn(ctx, &ChatTurn{ChatID: "chat-2", Query: "other", Response: "no"}, nil))

	items, err := s.History(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "mine", items[0].PlainText())
}

func TestChatStoreUsageLedger(t *testing.T) {
	s := newTestChatStore(t)
	ctx := context.Background()

	err := s.SaveTurn(ctx, &ChatTurn{ChatID: "chat-1", TeamID: "team-1", Query: "q", Response: "a"},
		[]types.NodeUsage{
			{NodeID: "llm-1", NodeName: "chat", Model: "gpt-4o", InputTokens: 100, OutputTokens: 50, TotalPoints: 1.5},
			{NodeID: "search-1", NodeName: "search", Model: "embed", InputTokens: 20, TotalPoints: 0.5},
		})
	require.NoError(t, err)

	total, err := s.TotalPoints(ctx, "team-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, total, 1e-9)

	// Other teams and earlier windows see nothing.
	total, err = s.TotalPoints(ctx, "team-2", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, total)

	total, err = s.TotalPoints(ctx, "team-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestEncodeResponses(t *testing.T) {
	assert.JSONEq(t, `[{"node_id":"a"}]`, EncodeResponses([]map[string]any{{"node_id": "a"}}))
}

func TestChatStorePersistsFailedTurn(t *testing.T) {
	s := newTestChatStore(t)
	ctx := context.Background()

	err := s.SaveTurn(ctx, &ChatTurn{
		ChatID:   "chat-1",
		TeamID:   "team-1",
		Query:    "q",
		Response: "partial",
		ErrorMsg: "[RUN_LIMIT_EXCEEDED] node execution budget exhausted",
	}, []types.NodeUsage{
		{NodeID: "llm-1", Model: "gpt-4o", InputTokens: 10, TotalPoints: 0.1},
	})
	require.NoError(t, err)

	var got ChatTurn
	require.NoError(t, s.db.Where("chat_id = ?", "chat-1").First(&got).Error)
	assert.Equal(t, "partial", got.Response)
	assert.Contains(t, got.ErrorMsg, "RUN_LIMIT_EXCEEDED")

	// The spend of a failed run still lands on the ledger.
	total, err := s.TotalPoints(ctx, "team-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, total, 1e-9)
}
