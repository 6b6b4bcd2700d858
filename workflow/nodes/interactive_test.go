package nodes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

func formField(key string, required bool) map[string]any {
	return map[string]any{"key": key, "label": key, "type": "input", "required": required}
}

func TestInteractiveCompleteFormPassesThrough(t *testing.T) {
	r := NewRegistry(Services{})
	res, err := r.runInteractive(context.Background(), testPayload(
		testNode("input", workflow.NodeTypeInteractive),
		map[string]any{
			InputFormFields: []any{formField("username", true), formField("nickname", false)},
			"username":      "ada",
		},
	))
	require.NoError(t, err)

	assert.Nil(t, res.Interactive)
	assert.Equal(t, "ada", res.Outputs["username"])
	assert.Equal(t, true, res.Outputs[OutputFormSubmitted])
	// Optional fields without a value still appear, as nil.
	_, present := res.Outputs["nickname"]
	assert.True(t, present)
}

func TestInteractiveIncompleteFormSuspends(t *testing.T) {
	r := NewRegistry(Services{})
	res, err := r.runInteractive(context.Background(), testPayload(
		testNode("input", workflow.NodeTypeInteractive),
		map[string]any{
			InputFormFields: []any{formField("username", true), formField("email", true)},
			"username":      "ada",
		},
	))
	require.NoError(t, err)

	require.NotNil(t, res.Interactive)
	require.Len(t, res.Interactive.Form, 2)
	// The filled field keeps its value so the caller can re-present it.
	assert.Equal(t, "ada", res.Interactive.Form[0].Value)
	assert.Nil(t, res.Interactive.Form[1].Value)
}

func TestInteractiveDefaultValueSatisfiesRequired(t *testing.T) {
	r := NewRegistry(Services{})
	field := formField("region", true)
	field["value"] = "eu-west"
	res, err := r.runInteractive(context.Background(), testPayload(
		testNode("input", workflow.NodeTypeInteractive),
		map[string]any{InputFormFields: []any{field}},
	))
	require.NoError(t, err)
	assert.Nil(t, res.Interactive)
	assert.Equal(t, "eu-west", res.Outputs["region"])
}

func TestInteractiveRejectsFieldWithoutKey(t *testing.T) {
	r := NewRegistry(Services{})
	_, err := r.runInteractive(context.Background(), testPayload(
		testNode("input", workflow.NodeTypeInteractive),
		map[string]any{InputFormFields: []any{map[string]any{"label": "nameless"}}},
	))
	require.Error(t, err)
}

// The full suspend/resume cycle through the real registry: form fields are
// declared inside the form list, not as node inputs, and must still receive
// the resubmitted values.
func TestInteractiveSuspendAndResumeThroughRegistry(t *testing.T) {
	reg := NewRegistry(Services{})
	graph, err := workflow.Compile(
		[]workflow.NodeDefinition{
			{ID: "start", Name: "start", Type: workflow.NodeTypeStart},
			{ID: "input", Name: "input", Type: workflow.NodeTypeInteractive, Inputs: []workflow.NodeInput{
				{Key: InputFormFields, RenderType: workflow.RenderInput, Value: []any{formField("email", true)}},
			}},
			{ID: "final", Name: "final", Type: workflow.NodeTypeAnswer, Inputs: []workflow.NodeInput{
				{Key: InputText, RenderType: workflow.RenderInput, Value: "contact: {{$input.email$}}"},
			}},
		},
		[]workflow.EdgeDefinition{
			{Source: "start", Target: "input"},
			{Source: "input", Target: "final"},
		},
		reg,
	)
	require.NoError(t, err)

	d := workflow.NewDispatcher(reg, zap.NewNop())
	first, err := d.Dispatch(context.Background(), graph, &workflow.DispatchRequest{Query: "hi"})
	require.NoError(t, err)
	require.NotNil(t, first.Interactive)
	assert.Equal(t, "input", first.Interactive.PausedNodeID)
	require.Len(t, first.Interactive.Form, 1)
	assert.Equal(t, "email", first.Interactive.Form[0].Key)

	// Round-trip the snapshot the way a store would.
	data, err := first.Interactive.Marshal()
	require.NoError(t, err)
	st, err := workflow.UnmarshalInteractiveState(data)
	require.NoError(t, err)

	resumed, err := d.Dispatch(context.Background(), graph, &workflow.DispatchRequest{
		Query:       "hi",
		ResumeState: st,
		Variables:   map[string]any{"email": "a@b.com"},
	})
	require.NoError(t, err)
	assert.Nil(t, resumed.Interactive)

	var text strings.Builder
	for _, c := range resumed.AssistantResponses {
		if c.Type == types.ContentTypeText && c.Text != nil {
			text.WriteString(c.Text.Content)
		}
	}
	assert.Equal(t, "contact: a@b.com", text.String())
}
