package types

// ChatRole identifies who produced a chat turn.
type ChatRole string

const (
	RoleHuman  ChatRole = "Human"
	RoleAI     ChatRole = "AI"
	RoleSystem ChatRole = "System"
)

// ContentType identifies the kind of a content block inside a chat turn.
type ContentType string

const (
	ContentTypeText        ContentType = "text"
	ContentTypeInteractive ContentType = "interactive"
)

// TextContent is the payload of a text content block.
type TextContent struct {
	Content string `json:"content"`
}

// AssistantContent is one content block of an assistant response. A turn is
// an ordered list of blocks; interactive blocks carry the serialized
// suspension state of a paused run.
type AssistantContent struct {
	Type        ContentType  `json:"type"`
	Text        *TextContent `json:"text,omitempty"`
	Interactive any          `json:"interactive,omitempty"`
}

// ChatItem is one prior turn of the conversation.
type ChatItem struct {
	Obj   ChatRole           `json:"obj"`
	Value []AssistantContent `json:"value"`
}

// TextAssistantContent builds a plain text content block.
func TextAssistantContent(text string) AssistantContent {
	return AssistantContent{Type: ContentTypeText, Text: &TextContent{Content: text}}
}

// PlainText flattens a chat item's text blocks into a single string.
func (c ChatItem) PlainText() string {
	var out string
	for _, v := range c.Value {
		if v.Type == ContentTypeText && v.Text != nil {
			out += v.Text.Content
		}
	}
	return out
}

// MergeAssistantContents merges consecutive text blocks so the persisted
// answer does not fragment per streamed node.
func MergeAssistantContents(blocks []AssistantContent) []AssistantContent {
	result := make([]AssistantContent, 0, len(blocks))
	for _, item := range blocks {
		if item.Type == ContentTypeText && item.Text != nil && len(result) > 0 {
			last := &result[len(result)-1]
			if last.Type == ContentTypeText && last.Text != nil {
				last.Text = &TextContent{Content: last.Text.Content + item.Text.Content}
				continue
			}
		}
		result = append(result, item)
	}
	return result
}
