package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "{\"coverages\""},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: ": []}"},
		},
	}
	assert.Equal(t, "{\"coverages\": []}", resp.Text())
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	}
	assert.InDelta(t, 18.0, usage.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
	assert.Zero(t, usage.EstimateCost("unknown-model"))
}

func TestEstimateCostWithCacheTokens(t *testing.T) {
	usage := TokenUsage{
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     1_000_000,
	}
	// write = 1.25x input rate, read = 0.1x input rate
	assert.InDelta(t, 3.0*1.25+3.0*0.1, usage.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "extract this"},
		{Role: "assistant", Content: "{"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := toSDKSystemBlocks(BuildCachedSystemBlocks("system prompt"))
	require.Len(t, blocks, 1)
	assert.Equal(t, "system prompt", blocks[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), blocks[0].CacheControl.TTL)
}

func TestFromSDKMessage(t *testing.T) {
	msg := &sdk.Message{
		ID:         "msg_01",
		Model:      "claude-sonnet-4-5-20250929",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "hello"},
		},
		Usage: sdk.Usage{
			InputTokens:  100,
			OutputTokens: 20,
		},
	}

	resp := fromSDKMessage(msg)
	assert.Equal(t, "msg_01", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hello", resp.Content[0].Text)
	assert.EqualValues(t, 100, resp.Usage.InputTokens)
	assert.EqualValues(t, 20, resp.Usage.OutputTokens)
}
