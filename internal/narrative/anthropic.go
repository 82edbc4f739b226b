package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = `You narrate a dungeon crawler. Reply with one JSON object and nothing else:
{"text": "<one or two sentences>", "xp": <integer>, "gold": <integer>}.
Suggest xp and gold near the base values you are given.`

// AnthropicNarrator generates narration with the Anthropic Messages API.
type AnthropicNarrator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicNarrator creates a narrator for model authenticated with apiKey.
//
// Precondition: apiKey and model must be non-empty; maxTokens > 0.
func NewAnthropicNarrator(apiKey, model string, maxTokens int) *AnthropicNarrator {
	return &AnthropicNarrator{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Narrate implements Narrator.
func (n *AnthropicNarrator) Narrate(ctx context.Context, req Request) (Result, error) {
	msg, err := n.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(n.model),
		MaxTokens: n.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(Prompt(req))),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic messages: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseReply(text.String())
}

// Prompt renders req as the user message.
func Prompt(req Request) string {
	return fmt.Sprintf(
		"Event: %s\nSubject: %s\nFloor: %d\nPlayer level: %d\nPlayer health: %d/%d\nBase xp: %d\nBase gold: %d",
		req.Kind, req.Subject, req.Floor, req.Level, req.Health, req.MaxHealth, req.BaseXP, req.BaseGold,
	)
}

// ParseReply extracts the JSON object from a model reply. Text around the
// object is ignored.
func ParseReply(reply string) (Result, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Result{}, errors.New("narrative reply contains no JSON object")
	}
	var res Result
	if err := json.Unmarshal([]byte(reply[start:end+1]), &res); err != nil {
		return Result{}, fmt.Errorf("decoding narrative reply: %w", err)
	}
	res.Text = strings.TrimSpace(res.Text)
	return res, nil
}
