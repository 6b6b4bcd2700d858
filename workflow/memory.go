package workflow

import (
	"time"

	"github.com/BaSui01/flowgate/types"
)

// Reserved variable keys injected by the history adapter. Nodes read them
// like any other global variable.
const (
	VarQuery     = "userChatInput"
	VarHistories = "histories"
	VarChatID    = "chatId"
	VarAppID     = "appId"
	VarCTime     = "cTime"
	VarMemories  = "system_memories"
)

// seedScope builds the initial variable scope for a run: system variables,
// flattened conversation history, node memories persisted from the previous
// turn, and the caller-supplied globals.
func seedScope(req *DispatchRequest, now time.Time) *VariableScope {
	scope := NewVariableScope(req.Variables)
	if req.Timezone != "" {
		if loc, err := time.LoadLocation(req.Timezone); err == nil {
			now = now.In(loc)
		}
	}
	scope.SetGlobal(VarCTime, now.Format("2006-01-02 15:04:05"))
	scope.SetGlobal(VarQuery, req.Query)
	scope.SetGlobal(VarChatID, req.ChatID)
	scope.SetGlobal(VarAppID, req.AppID)
	scope.SetGlobal(VarHistories, historyValues(req.Histories))
	if len(req.Memories) > 0 {
		mem := make(map[string]any, len(req.Memories))
		for k, v := range req.Memories {
			mem[k] = v
		}
		scope.SetGlobal(VarMemories, mem)
	}
	return scope
}

// historyValues flattens prior turns into plain role/text pairs usable as a
// chatHistory input value.
func historyValues(histories []types.ChatItem) []any {
	out := make([]any, 0, len(histories))
	for _, item := range histories {
		out = append(out, map[string]any{
			"obj":   string(item.Obj),
			"value": item.PlainText(),
		})
	}
	return out
}

// extractMemories collects outputs tagged memory-worthy, keyed
// "<nodeId>.<outputKey>", for the caller to persist alongside the chat
// record and hand back on the next turn.
func extractMemories(g *RuntimeGraph, scope *VariableScope) map[string]any {
	memories := make(map[string]any)
	for _, node := range g.Nodes() {
		for i := range node.Outputs {
			out := node.Outputs[i]
			if !out.Memory {
				continue
			}
			if v, ok := scope.NodeOutput(node.ID, out.Key); ok {
				memories[node.ID+"."+out.Key] = v
			}
		}
	}
	if len(memories) == 0 {
		return nil
	}
	return memories
}
