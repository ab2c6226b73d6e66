// Package responder adapts an llm.Provider to the pipeline's Responder
// contract: prompt parts in, reply text out.
package responder

import (
	"context"
	"errors"
	"strings"

	"github.com/user/waclaw/internal/types"
	"github.com/user/waclaw/pkg/llm"
)

type Responder struct {
	provider     llm.Provider
	systemPrompt string
}

func New(provider llm.Provider, systemPrompt string) *Responder {
	return &Responder{provider: provider, systemPrompt: systemPrompt}
}

// Generate prepends the system prompt, forwards the parts to the provider,
// and returns the reply text. Provider failures come back as a
// *types.GenerationError.
func (r *Responder) Generate(ctx context.Context, parts []types.PromptPart) (string, error) {
	messages := make([]llm.Message, 0, len(parts)+1)
	if r.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: string(types.RoleSystem), Content: r.systemPrompt})
	}
	for _, part := range parts {
		messages = append(messages, llm.Message{Role: string(part.Role), Content: part.Content})
	}

	resp, err := r.provider.Complete(ctx, messages)
	if err != nil {
		return "", &types.GenerationError{Err: err}
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", &types.GenerationError{Err: errEmptyReply}
	}
	return reply, nil
}

var errEmptyReply = errors.New("provider returned an empty reply")
