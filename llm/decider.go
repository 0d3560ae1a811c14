package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"

	"aitrader/entity"
)

// Request is one invocation of the decision collaborator: the day's system
// prompt, the full running message history and the advertised tools.
type Request struct {
	SystemPrompt string
	History      []entity.ChatMessage
	Tools        []entity.ToolDescriptor
}

// Decider produces the next assistant message plus any tool invocations.
// The session loop owns retries; implementations should fail fast.
type Decider interface {
	Decide(ctx context.Context, req Request) (entity.Decision, error)
}

// OpenAIDecider drives any OpenAI-protocol chat completion endpoint.
type OpenAIDecider struct {
	client openai.Client
	model  string
}

// NewDecider resolves the provider endpoint for basemodel and wraps it.
// baseURL and apiKey override env-based resolution when non-empty.
func NewDecider(basemodel, baseURL, apiKey string, timeout time.Duration) (*OpenAIDecider, error) {
	client, err := NewClient(basemodel, baseURL, apiKey, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}
	_, model := SplitModel(basemodel)
	return &OpenAIDecider{client: client, model: model}, nil
}

func (d *OpenAIDecider) Decide(ctx context.Context, req Request) (entity.Decision, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	for _, msg := range req.History {
		switch msg.Role {
		case entity.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
	for _, tool := range req.Tools {
		tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  shared.FunctionParameters(tool.Parameters),
		}))
	}

	completion, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    d.model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return entity.Decision{}, fmt.Errorf("failed to get completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return entity.Decision{}, errors.New("completion returned no choices")
	}

	choice := completion.Choices[0].Message
	decision := entity.Decision{Content: choice.Content}
	for _, call := range choice.ToolCalls {
		decision.ToolCalls = append(decision.ToolCalls, entity.ToolInvocation{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return decision, nil
}
