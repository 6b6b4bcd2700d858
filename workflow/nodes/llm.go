package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/flowgate/llm"
	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Input/output keys of the LLM chat node.
const (
	InputModel          = "model"
	InputSystemPrompt   = "systemPrompt"
	InputTemperature    = "temperature"
	InputMaxTokens      = "maxToken"
	InputQuoteQA        = "quoteQA"
	InputHistoryNum     = "historyNum"
	InputIsResponseText = "isResponseAnswerText"

	OutputAnswerText = "answerText"
)

// runChat calls the LLM with the node's prompt assembled from system
// prompt, dataset quotes, sliced history and the user query. Tokens are
// forwarded to the stream as they arrive.
func (r *Registry) runChat(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	if r.svc.Chat == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "chat client not configured").WithNode(p.Node.ID)
	}

	model := stringParam(p.Params, InputModel)
	query := stringParam(p.Params, OutputQuery)
	if query == "" {
		query = p.Dispatch.Query
	}
	respond := boolParam(p.Params, InputIsResponseText, true)

	messages := buildChatMessages(p, query)
	req := &llm.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: floatParam(p.Params, InputTemperature, 0),
		MaxTokens:   intParam(p.Params, InputMaxTokens, 0),
		Stream:      p.Dispatch.Stream,
	}

	var onDelta llm.DeltaFunc
	if respond {
		onDelta = p.Delta
	}
	result, err := r.svc.Chat.Chat(ctx, req, onDelta)
	if err != nil {
		return nil, types.AsError(err, types.ErrNodeExecution).WithNode(p.Node.ID)
	}

	inputTokens, outputTokens := result.InputTokens, result.OutputTokens
	if inputTokens == 0 {
		for _, m := range messages {
			inputTokens += r.svc.Tokenizer.CountTokens(m.Content)
		}
	}
	if outputTokens == 0 {
		outputTokens = r.svc.Tokenizer.CountTokens(result.Content)
	}

	res := &workflow.NodeResult{
		Outputs: map[string]any{OutputAnswerText: result.Content},
		Usages: []types.NodeUsage{{
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalPoints:  float64(inputTokens+outputTokens) / 1000 * r.svc.PointsPerKiloTokens,
		}},
	}
	if respond {
		res.AnswerText = result.Content
	}
	return res, nil
}

// buildChatMessages assembles the completion context: system prompt with
// quote block, prior turns capped by historyNum, then the user query.
func buildChatMessages(p *workflow.NodePayload, query string) []llm.ChatMessage {
	var messages []llm.ChatMessage

	system := stringParam(p.Params, InputSystemPrompt)
	if quotes := sliceParam(p.Params, InputQuoteQA); len(quotes) > 0 {
		block := formatQuoteBlock(quotes)
		if system != "" {
			system += "\n\n" + block
		} else {
			system = block
		}
	}
	if system != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: system})
	}

	historyNum := intParam(p.Params, InputHistoryNum, 6)
	histories := p.Dispatch.Histories
	if historyNum >= 0 && len(histories) > historyNum {
		histories = histories[len(histories)-historyNum:]
	}
	for _, item := range histories {
		role := llm.RoleUser
		if item.Obj == types.RoleAI {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: item.PlainText()})
	}

	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: query})
	return messages
}

// formatQuoteBlock joins ranked passages into the reference block the
// model receives. Quotes keep their q/a pair on one entry each.
func formatQuoteBlock(quotes []any) string {
	var b strings.Builder
	b.WriteString("Use the following passages as reference:\n")
	for i, item := range quotes {
		q, _ := item.(map[string]any)
		if q == nil {
			continue
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, strings.TrimSpace(types.ValueToString(q["q"])))
		if a := strings.TrimSpace(types.ValueToString(q["a"])); a != "" {
			b.WriteString("\n")
			b.WriteString(a)
		}
		b.WriteString("\n")
	}
	return b.String()
}
