// Command resilience-demo wraps a single Anthropic Messages API call
// with the full resilient pipeline, as a worked example of treating an
// LLM call as the opaque operation the core library wraps.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"github.com/nooikko/resilience"
	"github.com/nooikko/resilience/internal/logger"
)

var (
	prompt     string
	breakerKey string
	maxRetries int
)

var rootCmd = &cobra.Command{
	Use:   "resilience-demo",
	Short: "Send a prompt to Claude through the resilient pipeline",
	RunE:  runDemo,
}

func init() {
	rootCmd.Flags().StringVarP(&prompt, "prompt", "p", "Say hello in one sentence.", "prompt to send")
	rootCmd.Flags().StringVar(&breakerKey, "breaker-key", "anthropic-messages", "circuit breaker key for this call site")
	rootCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "maximum retry attempts")
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger.Initialize(logger.Config{Level: "info", Format: "console"})
	log := logger.Named("resilience-demo")

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	askClaude := func(ctx context.Context) (any, error) {
		msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.ModelClaude3_5HaikuLatest,
			MaxTokens: 256,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return nil, err
		}
		if len(msg.Content) == 0 {
			return "", nil
		}
		return msg.Content[0].Text, nil
	}

	echoFallback := func(ctx context.Context) (any, error) {
		return fmt.Sprintf("(fallback) could not reach Claude; echoing prompt: %s", prompt), nil
	}

	wrapped := resilience.CreateResilient(askClaude, resilience.ComposerOptions{
		RetryPolicy: &resilience.RetryPolicy{
			MaxAttempts:       maxRetries,
			InitialDelay:      500 * time.Millisecond,
			MaxDelay:          10 * time.Second,
			BackoffMultiplier: 2,
		},
		BreakerKey: breakerKey,
		Fallbacks: []resilience.FallbackEntry{
			{
				Run: echoFallback,
				Config: resilience.FallbackConfig{
					Name:     "local-echo",
					Priority: 1,
				},
			},
		},
		OnFallback: func(index int, name string, primaryErr error) {
			log.Warn("falling back", logger.String("name", name), logger.String("primary_error", primaryErr.Error()))
		},
	})

	result, err := wrapped(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println(result)

	m := resilience.GetMetrics()
	log.Info("pipeline metrics",
		logger.Int("retry_attempts", int(m.RetryAttempts)),
		logger.Int("fallback_activations", int(m.FallbackActivations)),
		logger.Int("circuit_breaker_trips", int(m.CircuitBreakerTrips)))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
