package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ModelChecker asks an OpenAI-compatible server which models it serves.
type ModelChecker struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewModelChecker creates a new model checker.
func NewModelChecker(baseURL, apiKey string) *ModelChecker {
	return &ModelChecker{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(),
	}
}

// ModelInfo is one entry of the /v1/models listing.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelsResponse represents the response from the /v1/models endpoint.
type ModelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// HasModel reports whether the server lists modelName.
func (mc *ModelChecker) HasModel(ctx context.Context, modelName string) (bool, error) {
	req, err := newRequest(ctx, http.MethodGet, endpoint(mc.baseURL, "/v1/models"), mc.apiKey, nil)
	if err != nil {
		return false, err
	}

	var modelsResp ModelsResponse
	if err := doJSON(mc.client, req, &modelsResp); err != nil {
		return false, fmt.Errorf("failed to list models: %w", err)
	}

	for _, model := range modelsResp.Data {
		if model.ID == modelName {
			return true, nil
		}
	}
	return false, nil
}

// WaitForModel polls until the server lists modelName, the attempts run out or ctx ends.
func (mc *ModelChecker) WaitForModel(ctx context.Context, modelName string, attempts int, interval time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		ok, err := mc.HasModel(ctx, modelName)
		if err == nil && ok {
			return nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	if lastErr != nil {
		return fmt.Errorf("model %s not available: %w", modelName, lastErr)
	}
	return fmt.Errorf("model %s not listed after %d attempts", modelName, attempts)
}
