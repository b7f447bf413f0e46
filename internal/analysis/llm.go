package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"fx-trader/internal/models"
)

// Completer sends a system and user prompt to a language model.
type Completer interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient wraps the OpenAI API client.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CompleteWithSystem sends a completion request with a system prompt.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

const llmSystemPrompt = `You are an FX market analyst. Given recent candles for one currency pair,
reply with a single JSON object and nothing else:
{"direction": "BUY" | "SELL" | "NEUTRAL", "confidence": 0-100, "reason": "<one sentence>"}`

// LLMAnalyzer asks a language model for a directional read of recent bars.
type LLMAnalyzer struct {
	client  Completer
	timeout time.Duration
	bars    int
	logger  zerolog.Logger
}

// NewLLMAnalyzer creates the analyzer.
func NewLLMAnalyzer(client Completer, timeout time.Duration, logger zerolog.Logger) *LLMAnalyzer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLMAnalyzer{client: client, timeout: timeout, bars: 30, logger: logger.With().Str("analyzer", "llm").Logger()}
}

func (l *LLMAnalyzer) Name() string { return "llm" }

type llmReply struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func (l *LLMAnalyzer) Analyze(ctx context.Context, in Input) (models.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	out, err := l.client.CompleteWithSystem(ctx, llmSystemPrompt, l.prompt(in))
	l.logger.Debug().Str("symbol", in.Symbol).Dur("duration", time.Since(start)).Err(err).Msg("LLM analysis")
	if err != nil {
		return models.Verdict{}, err
	}
	return parseLLMReply(out)
}

func (l *LLMAnalyzer) prompt(in Input) string {
	bars := in.EntryBars()
	if len(bars) > l.bars {
		bars = bars[len(bars)-l.bars:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pair: %s\nTimeframe: %s\nBid: %.5f Ask: %.5f\nCandles (time open high low close):\n",
		in.Symbol, in.EntryTF, in.Tick.Bid, in.Tick.Ask)
	for _, bar := range bars {
		fmt.Fprintf(&b, "%s %.5f %.5f %.5f %.5f\n", bar.Time.UTC().Format(time.RFC3339), bar.Open, bar.High, bar.Low, bar.Close)
	}
	return b.String()
}

func parseLLMReply(out string) (models.Verdict, error) {
	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	if i := strings.Index(out, "{"); i > 0 {
		out = out[i:]
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &reply); err != nil {
		return models.Verdict{}, fmt.Errorf("parsing llm reply: %w", err)
	}

	dir := models.Direction(strings.ToUpper(reply.Direction))
	switch dir {
	case models.DirectionBuy, models.DirectionSell, models.DirectionNeutral:
	default:
		return models.Verdict{}, fmt.Errorf("llm reply has unknown direction %q", reply.Direction)
	}
	if dir == models.DirectionNeutral {
		return models.Neutral("llm", reply.Reason), nil
	}
	return models.Verdict{Direction: dir, Confidence: reply.Confidence, Reason: reply.Reason}, nil
}
