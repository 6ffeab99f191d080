package llm

import (
	"fmt"
	"strings"

	"cryobank/contract"
	"cryobank/pkg/openrouter"
)

// NewFromOpenRouter wires the transport from provider config.
func NewFromOpenRouter(cfg openrouter.Config) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: openrouter api key is required", contract.ErrValidation)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: model is required", contract.ErrValidation)
	}
	client := openrouter.NewClient(cfg)
	if client == nil {
		return nil, fmt.Errorf("%w: could not build openrouter client", contract.ErrValidation)
	}
	return NewOpenAIClient(client, strings.TrimSpace(cfg.Model)), nil
}
