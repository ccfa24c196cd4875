// Package icebreaker calls the external conversation-starter generator. The
// generator is an opaque text service with no latency bound, so every call is
// context-bounded and failures degrade to a skipped cycle.
package icebreaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/env"
)

// Generator produces conversation-starter prompts from two participants'
// interest lists
type Generator interface {
	Generate(ctx context.Context, interestsA, interestsB []string) ([]string, error)
}

// HTTPGenerator calls the text-generation service over HTTP
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPGenerator creates a generator client for the given endpoint
func NewHTTPGenerator(endpoint, apiKey string) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: constants.IcebreakerRequestTimeout,
		},
	}
}

type generateRequest struct {
	InterestsA []string `json:"interests_a"`
	InterestsB []string `json:"interests_b"`
	MaxPrompts int      `json:"max_prompts"`
}

type generateResponse struct {
	Prompts []string `json:"prompts"`
}

// Generate requests up to MaxIcebreakerPrompts short prompts
func (g *HTTPGenerator) Generate(ctx context.Context, interestsA, interestsB []string) ([]string, error) {
	body, err := json.Marshal(generateRequest{
		InterestsA: interestsA,
		InterestsB: interestsB,
		MaxPrompts: constants.MaxIcebreakerPrompts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode generator response: %w", err)
	}

	if len(out.Prompts) > constants.MaxIcebreakerPrompts {
		out.Prompts = out.Prompts[:constants.MaxIcebreakerPrompts]
	}

	return out.Prompts, nil
}

// MockGenerator returns canned prompts for development and tests
type MockGenerator struct{}

// Generate returns a fixed set of prompts
func (g *MockGenerator) Generate(ctx context.Context, interestsA, interestsB []string) ([]string, error) {
	return []string{
		"What's the best trip you've ever taken?",
		"Morning person or night owl?",
		"What are you weirdly good at?",
	}, nil
}

// NewFromEnv selects a generator implementation based on ICEBREAKER_PROVIDER
func NewFromEnv() Generator {
	switch env.GetString("ICEBREAKER_PROVIDER", "mock") {
	case "http":
		endpoint := env.GetString("ICEBREAKER_ENDPOINT", "http://localhost:9100/v1/icebreakers")
		apiKey := env.GetStringFromFile("ICEBREAKER_API_KEY", "")
		return NewHTTPGenerator(endpoint, apiKey)
	default:
		return &MockGenerator{}
	}
}
