package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse(t *testing.T) {
	resp := response(&sdk.Message{
		ID:         "msg_parcel_1",
		Model:      "claude-haiku-4-5-20251001",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Strong location."},
			{Type: "text", Text: " Moderate risk."},
		},
		Usage: sdk.Usage{InputTokens: 100, OutputTokens: 50},
	})

	require.NotNil(t, resp)
	assert.Equal(t, "msg_parcel_1", resp.ID)
	assert.Equal(t, "claude-haiku-4-5-20251001", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "Strong location. Moderate risk.", resp.Text())
	assert.Equal(t, TokenUsage{InputTokens: 100, OutputTokens: 50}, resp.Usage)
}

func TestResponse_NoContent(t *testing.T) {
	resp := response(&sdk.Message{ID: "msg_empty", StopReason: "max_tokens"})
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.Text())
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "thinking", Text: "internal"},
		{Type: "text", Text: "  visible  "},
	}}
	assert.Equal(t, "visible", resp.Text())

	var nilResp *MessageResponse
	assert.Empty(t, nilResp.Text())
}

func TestTurns(t *testing.T) {
	msgs := turns([]Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
		{Role: "system", Content: "sent as user"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))

	assert.Empty(t, turns(nil))
}

func TestEstimateCost(t *testing.T) {
	million := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	tests := []struct {
		name  string
		usage TokenUsage
		model string
		want  float64
	}{
		{"haiku", million, "claude-haiku-4-5-20251001", 4.80},
		{"sonnet", million, "claude-sonnet-4-5-20250929", 18.00},
		{"small haiku call", TokenUsage{InputTokens: 400, OutputTokens: 60}, "claude-haiku-4-5-20251001", 0.00056},
		{"unknown model", million, "unknown-model", 0},
		{"no tokens", TokenUsage{}, "claude-haiku-4-5-20251001", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.usage.EstimateCost(tt.model), 1e-6)
		})
	}
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 100, OutputTokens: 50}.LogCost("claude-haiku-4-5-20251001", "summary")
		TokenUsage{}.LogCost("unknown-model", "")
	})
}

func TestNewClient(t *testing.T) {
	assert.NotNil(t, NewClient("test-key"))
	assert.NotNil(t, NewClient("test-key", WithBaseURL("http://localhost"), WithMaxRetries(0)))
}
