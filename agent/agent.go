// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/airlock-foundation/airlock/bridge"
)

const (
	// DefaultMaxRounds caps model calls within one turn. A tool loop
	// that has not converged after this many rounds is runaway.
	DefaultMaxRounds = 50

	defaultMaxTokens = 8192
)

// Config holds the session parameters.
type Config struct {
	// APIKey is the sandbox identity token. The proxy replaces it
	// with the real credential; it is never valid upstream.
	APIKey string

	// BaseURL is the proxy address the SDK sends requests to.
	BaseURL string

	// Model is the model identifier passed through to the API.
	Model string

	// SystemPrompt is prepended to every conversation. Optional.
	SystemPrompt string

	// WorkingDirectory roots the local toolset. Defaults to the
	// process working directory.
	WorkingDirectory string

	// MaxRounds caps model calls per turn. Defaults to
	// DefaultMaxRounds.
	MaxRounds int

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Session is a stateful conversation implementing [bridge.Client].
// History persists across turns; the bridge stays stateless. Not safe
// for concurrent turns — the bridge serializes them.
type Session struct {
	client       anthropic.Client
	model        anthropic.Model
	systemPrompt string
	maxRounds    int
	tools        *Toolset
	history      []anthropic.MessageParam
	logger       *slog.Logger
}

// NewSession creates a session talking to the proxy at config.BaseURL.
func NewSession(config Config) (*Session, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	maxRounds := config.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		client: anthropic.NewClient(
			option.WithAPIKey(config.APIKey),
			option.WithBaseURL(config.BaseURL),
		),
		model:        anthropic.Model(config.Model),
		systemPrompt: config.SystemPrompt,
		maxRounds:    maxRounds,
		tools:        NewToolset(config.WorkingDirectory),
		logger:       logger,
	}, nil
}

// Turn runs one conversational turn: append the user input, then
// alternate model calls and tool execution until the model responds
// without requesting a tool. Events are emitted in content-block order
// as each model response completes.
func (s *Session) Turn(ctx context.Context, input string, emit func(bridge.Event)) error {
	s.history = append(s.history, anthropic.NewUserMessage(anthropic.NewTextBlock(input)))

	for round := 0; round < s.maxRounds; round++ {
		message, err := s.streamResponse(ctx)
		if err != nil {
			// The failed call left no assistant message; drop the
			// user input too so history stays alternating and the
			// next turn starts clean.
			s.history = s.history[:len(s.history)-1-round*2]
			return err
		}
		s.history = append(s.history, message.ToParam())

		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range message.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				if variant.Text != "" {
					emit(bridge.TextEvent(variant.Text))
				}
			case anthropic.ToolUseBlock:
				rawInput := []byte(variant.JSON.Input.Raw())
				emit(bridge.ToolInvocationEvent(variant.Name, toolDetail(rawInput)))

				output, isError := s.tools.Run(ctx, variant.Name, rawInput)
				emit(bridge.ToolResultEvent(output))
				toolResults = append(toolResults,
					anthropic.NewToolResultBlock(variant.ID, output, isError))

				s.logger.Debug("tool executed",
					"tool", variant.Name,
					"is_error", isError,
					"round", round,
				)
			}
		}

		if len(toolResults) == 0 {
			return nil
		}
		s.history = append(s.history, anthropic.NewUserMessage(toolResults...))
	}

	return fmt.Errorf("turn did not converge after %d model calls", s.maxRounds)
}

// streamResponse makes one streaming model call and returns the
// accumulated message. Streaming keeps the proxy path exercised end to
// end even though events are emitted per completed block.
func (s *Session) streamResponse(ctx context.Context) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: defaultMaxTokens,
		Messages:  s.history,
		Tools:     s.tools.Params(),
	}
	if s.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: s.systemPrompt}}
	}

	stream := s.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulating stream event: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("streaming model response: %w", err)
	}

	s.logger.Debug("model response complete",
		"stop_reason", message.StopReason,
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
	)
	return &message, nil
}

var _ bridge.Client = (*Session)(nil)
