package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"shijian-backend/internal/models"
)

const geminiModel = "gemini-3-flash-preview"

// GeminiAnalyzer analyzes poems with Gemini. Concurrent calls are bounded
// by a token bucket and paced to requestsPerMinute.
type GeminiAnalyzer struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{}
	limiter  *rate.Limiter
}

func NewGeminiAnalyzer(apiKey string, concurrentReqs, requestsPerMinute int) (*GeminiAnalyzer, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(geminiModel)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(800)
	model.SystemInstruction = genai.NewUserContent(genai.Text(
		"你是一位专业的古典诗词鉴赏专家。请用专业但易懂的中文回答。"))

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}

	return &GeminiAnalyzer{
		client:   client,
		model:    model,
		rateChan: rateChan,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), concurrentReqs),
	}, nil
}

func (g *GeminiAnalyzer) Close() {
	g.client.Close()
}

func (g *GeminiAnalyzer) Model() string { return geminiModel }

// acquireRate blocks until a rate slot is available
func (g *GeminiAnalyzer) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (g *GeminiAnalyzer) releaseRate() {
	g.rateChan <- struct{}{}
}

func (g *GeminiAnalyzer) AnalyzePoem(ctx context.Context, req models.AnalysisRequest) (string, error) {
	if err := g.acquireRate(ctx); err != nil {
		return "", err
	}
	defer g.releaseRate()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("gemini rate limit: %w", err)
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(buildAnalysisPrompt(req)))
	if err != nil {
		return "", fmt.Errorf("gemini analysis failed: %w", err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty analysis")
	}
	return text, nil
}

func buildAnalysisPrompt(req models.AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "请赏析下面这首诗词。\n\n标题：%s\n作者：%s\n原文：\n%s\n\n", req.PoemTitle, req.PoemAuthor, req.PoemContent)
	b.WriteString("请按以下三个部分作答，每部分一段，总字数不超过五百字：\n")
	b.WriteString("【创作背景】\n【意象解读】\n【情感表达】\n")
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
