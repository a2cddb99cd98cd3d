package token

// ModelInfo contains model-specific parameters used for budget sizing.
type ModelInfo struct {
	// ContextWindow is the maximum context size of the model in tokens.
	ContextWindow int

	// DefaultBudget is a reasonable default conversation budget for the
	// model when the caller does not choose one.
	DefaultBudget int
}

// KnownModels maps model IDs to their capabilities.
var KnownModels = map[string]ModelInfo{
	// Claude 4 models
	"claude-sonnet-4-5-20250929": {ContextWindow: 200000, DefaultBudget: 16384},
	"claude-opus-4-5-20251101":   {ContextWindow: 200000, DefaultBudget: 16384},
	// Claude 3.5 models
	"claude-3-5-sonnet-20241022": {ContextWindow: 200000, DefaultBudget: 8192},
	"claude-3-5-haiku-20241022":  {ContextWindow: 200000, DefaultBudget: 8192},
	// Claude 3 models
	"claude-3-opus-20240229":   {ContextWindow: 200000, DefaultBudget: 4096},
	"claude-3-haiku-20240307":  {ContextWindow: 200000, DefaultBudget: 4096},
	// OpenAI models
	"gpt-4o":        {ContextWindow: 128000, DefaultBudget: 8192},
	"gpt-4o-mini":   {ContextWindow: 128000, DefaultBudget: 8192},
	"gpt-4-turbo":   {ContextWindow: 128000, DefaultBudget: 8192},
	"gpt-3.5-turbo": {ContextWindow: 16385, DefaultBudget: 4096},
}

// GetModelInfo returns model info, using sensible defaults for unknown models.
// Counting must never fail because of an unrecognized model ID.
func GetModelInfo(model string) ModelInfo {
	if info, ok := KnownModels[model]; ok {
		return info
	}
	return ModelInfo{ContextWindow: 128000, DefaultBudget: 8192}
}
