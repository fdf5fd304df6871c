package subtitles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const pickInstruction = `You pick the best subtitle for a video file.
Given a search query, the video file name and an indexed list of subtitle
search results, return the index of the result that best matches the release
(season/episode, resolution, release group). Respond with JSON only, in the
form {"index": 0}. If none match, respond {"index": -1}.`

type LLMArbiter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewLLMArbiter(cfg LLMConfig) *LLMArbiter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LLMArbiter{client: openai.NewClientWithConfig(clientCfg), model: model, timeout: timeout}
}

func (a *LLMArbiter) PickSubtitle(ctx context.Context, results []SearchResult, query, fileName string) (int, error) {
	type candidate struct {
		Index    int    `json:"index"`
		Name     string `json:"name"`
		Language string `json:"language"`
	}
	candidates := make([]candidate, 0, len(results))
	for i, r := range results {
		candidates = append(candidates, candidate{Index: i, Name: r.Name, Language: r.Language})
	}
	listing, err := json.Marshal(candidates)
	if err != nil {
		return -1, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: a.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: pickInstruction},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Query: %s\nFile: %s\nResults: %s", query, fileName, listing)},
		},
	})
	if err != nil {
		return -1, err
	}
	if len(resp.Choices) == 0 {
		return -1, errors.New("empty completion")
	}

	var parsed struct {
		Index int `json:"index"`
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return -1, fmt.Errorf("malformed arbiter response: %w", err)
	}
	if parsed.Index < 0 {
		return -1, errors.New("no matching subtitle")
	}
	return parsed.Index, nil
}
