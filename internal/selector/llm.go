package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const pickInstruction = `You select files from a torrent for playback.
Given an indexed file list and a search query, return the indexes of the video
files matching the query's season/episode/resolution intent. Ignore samples,
trailers and extras unless the query explicitly asks for them. Include subtitle
tracks that belong to the matched video. Respond with JSON only, in the form
{"indexes": [0, 2]}. If nothing matches, respond {"indexes": []}.`

// noMatchSentinel is the index value some models emit instead of an empty
// list; it is filtered out before validation.
const noMatchSentinel = -1

type LLMArbiter struct {
	client     *openai.Client
	model      string
	maxRetries int
	timeout    time.Duration
}

type LLMConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
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
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &LLMArbiter{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		maxRetries: retries,
		timeout:    timeout,
	}
}

type pickResponse struct {
	Indexes []int `json:"indexes"`
	// Some models answer a single selection with {"index": n}.
	Index *int `json:"index"`
}

func (a *LLMArbiter) PickFiles(ctx context.Context, candidates []Candidate, query string) ([]int, error) {
	listing, err := json.Marshal(candidates)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("Query: %s\nFiles: %s", query, listing)

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		indexes, err := a.pickOnce(ctx, prompt)
		if err == nil {
			return indexes, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("file arbiter exhausted retries: %w", lastErr)
}

func (a *LLMArbiter) pickOnce(ctx context.Context, prompt string) ([]int, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: a.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: pickInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty completion")
	}

	return parsePickResponse(resp.Choices[0].Message.Content)
}

func parsePickResponse(content string) ([]int, error) {
	content = strings.TrimSpace(content)
	// Tolerate fenced responses from models that ignore response_format.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var parsed pickResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("malformed arbiter response: %w", err)
	}

	indexes := parsed.Indexes
	if len(indexes) == 0 && parsed.Index != nil {
		indexes = []int{*parsed.Index}
	}

	out := indexes[:0]
	for _, idx := range indexes {
		if idx == noMatchSentinel {
			continue
		}
		out = append(out, idx)
	}
	return out, nil
}
