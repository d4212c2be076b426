package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/mcdev12/respawn/go/internal/models"
)

const promptTemplate = `You read boss timer reports for an online game.

Rules:
1. Extract the time (hours and minutes). Inputs look like "0300", "300", "3:00" or "03:00". "300" means 03:00.
2. Identify the boss from the list below and answer with its main name. Map aliases to the main name, e.g. "東飛" is "85飛龍". Prefer exact alias matches.
3. Set isPass when the report says the boss was passed rather than killed (keywords: 過, pass, 沒打, miss).

Respond with a single JSON object:
{"entityName": string|null, "hour": int|null, "minute": int|null, "isPass": bool, "found": bool}
found is true only when both a boss and a time were identified.

Bosses:
%s`

// OpenAIConfig configures the chat completion parser.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// EntityLister lists the catalog for the prompt.
type EntityLister interface {
	Entities() []models.Entity
}

// OpenAIParser delegates parsing to a chat completion model.
type OpenAIParser struct {
	client *openai.Client
	model  string
	prompt string
}

type openAIResult struct {
	EntityName *string `json:"entityName"`
	Hour       *int    `json:"hour"`
	Minute     *int    `json:"minute"`
	IsPass     bool    `json:"isPass"`
	Found      bool    `json:"found"`
}

// NewOpenAIParser creates a parser backed by the OpenAI API or a compatible endpoint.
func NewOpenAIParser(cfg OpenAIConfig, catalog EntityLister) (*OpenAIParser, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := openai.GPT4oMini
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &OpenAIParser{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		prompt: fmt.Sprintf(promptTemplate, entityList(catalog.Entities())),
	}, nil
}

func entityList(entities []models.Entity) string {
	var b strings.Builder
	for _, e := range entities {
		b.WriteString(e.Name)
		if len(e.Aliases) > 0 {
			b.WriteString(" (")
			b.WriteString(strings.Join(e.Aliases, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (p *OpenAIParser) Parse(ctx context.Context, input string) (Parsed, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.prompt},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		log.Error().Err(err).Msg("OpenAI parse request failed")
		return Parsed{Error: "parsing service unavailable"}, nil
	}
	if len(resp.Choices) == 0 {
		return Parsed{Error: "parsing service returned no answer"}, nil
	}

	content := cleanJSONResponse(resp.Choices[0].Message.Content)
	var result openAIResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		log.Warn().Err(err).Str("response", content).Msg("unexpected OpenAI response")
		return Parsed{Error: "could not read parser response"}, nil
	}

	if !result.Found || result.EntityName == nil || result.Hour == nil || result.Minute == nil {
		return Parsed{Error: `unrecognised input, expected e.g. "0300 東飛"`}, nil
	}
	return Parsed{
		EntityName: result.EntityName,
		Hour:       result.Hour,
		Minute:     result.Minute,
		IsPass:     result.IsPass,
	}, nil
}

// cleanJSONResponse strips markdown fences some models wrap JSON in.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
