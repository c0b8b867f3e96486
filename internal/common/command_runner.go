package common

import (
	"context"
	"fmt"

	"cvtailor/internal/ai"
	"cvtailor/internal/errors"
)

// AIOperationFunc is the shape shared by every ai.Service operation.
type AIOperationFunc[Input, Output any] func(context.Context, Input) (Output, *ai.TokenUsage, error)

// RunAICommand runs one AI operation for a CLI command, logs the token usage and prints the result.
// The result is returned so the caller can export it.
func RunAICommand[Input, Output any](
	ctx context.Context,
	logger *errors.Logger,
	output *OutputHandler,
	cmdConfig CommandConfig,
	operation string,
	input Input,
	aiOperation AIOperationFunc[Input, Output],
) (Output, error) {
	logger.Info("Starting AI operation", "operation", operation, "format", cmdConfig.OutputFormat)

	result, tokenUsage, err := aiOperation(ctx, input)
	if err != nil {
		var zero Output
		return zero, fmt.Errorf("%s failed: %w", operation, err)
	}

	if tokenUsage != nil {
		logger.Info("AI token usage",
			"operation", operation,
			"input_tokens", tokenUsage.InputTokens,
			"output_tokens", tokenUsage.OutputTokens,
			"total_tokens", tokenUsage.TotalTokens)
	}

	if err := output.HandleOutput(result, cmdConfig); err != nil {
		return result, err
	}
	return result, nil
}
