// Package transcript renders conversation history into a token-budgeted
// prompt for the completion call.
package transcript

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/waclaw/internal/types"
)

// Builder assembles token-budgeted conversation transcripts.
type Builder struct {
	tokenizer *tiktoken.Tiktoken
	budget    int
}

// New creates a transcript builder for the given model. maxTokens is the
// model's context window size; reserve is held back for the model's response.
func New(model string, maxTokens, reserve int) (*Builder, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Builder{
		tokenizer: enc,
		budget:    maxTokens - reserve,
	}, nil
}

// countTokens returns the token count for a string.
func (b *Builder) countTokens(text string) int {
	return len(b.tokenizer.Encode(text, nil, nil))
}

// Build renders prior turns plus the new utterance into a single transcript
// prompt part. Turns are dropped oldest-first when the token budget is
// exceeded; the new utterance is always kept.
func (b *Builder) Build(turns []*types.ConversationTurn, utterance string) []types.PromptPart {
	utteranceLine := "User: " + utterance
	remaining := b.budget - b.countTokens(utteranceLine)

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, renderTurn(turn))
	}

	// Walk newest-first so the most recent history survives trimming.
	kept := 0
	for i := len(lines) - 1; i >= 0; i-- {
		cost := b.countTokens(lines[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		kept++
	}
	lines = lines[len(lines)-kept:]

	var sb strings.Builder
	if len(lines) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(utteranceLine)

	return []types.PromptPart{{Role: types.RoleUser, Content: sb.String()}}
}

func renderTurn(turn *types.ConversationTurn) string {
	switch turn.Role {
	case types.RoleAssistant:
		return "Assistant: " + turn.Content
	default:
		return "User: " + turn.Content
	}
}
