// File: internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replykit/internal/config"
)

// Provider names accepted by the factory.
const (
	ProviderGemini   = "gemini"
	ProviderTemplate = "template"
)

// NewGenerator builds the Generator named by the configuration.
func NewGenerator(cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case ProviderTemplate:
		return &TemplateGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s, %s]",
			cfg.Provider, ProviderGemini, ProviderTemplate)
	}
}

// TemplateGenerator produces a fixed acknowledgement without any network
// call. It backs dry runs and lets the send pipeline be exercised with no
// API key configured.
type TemplateGenerator struct{}

// GenerateReply acknowledges the most recent message.
func (*TemplateGenerator) GenerateReply(_ context.Context, req ReplyRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("no conversation context to reply to")
	}
	if strings.HasPrefix(req.Language, "ja") {
		return "承知いたしました。確認してご連絡いたします。", nil
	}
	return "Understood, I will check and get back to you.", nil
}
