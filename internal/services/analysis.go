package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shijian-backend/internal/assistant"
	"shijian-backend/internal/models"
)

const (
	AnalysisQueue = "queue:poem-analysis"
	FallbackModel = "fallback"
)

// Analyzer produces a literary analysis of one poem.
type Analyzer interface {
	AnalyzePoem(ctx context.Context, req models.AnalysisRequest) (string, error)
	Model() string
}

// AnalysisService fronts an Analyzer with a redis cache keyed by title and
// author. Analyzer failures degrade to a fixed three-part analysis.
type AnalysisService struct {
	analyzer Analyzer
	redis    *redis.Client
	ttl      time.Duration
	logger   *slog.Logger
}

func NewAnalysisService(analyzer Analyzer, redisClient *redis.Client, ttl time.Duration) *AnalysisService {
	return &AnalysisService{
		analyzer: analyzer,
		redis:    redisClient,
		ttl:      ttl,
		logger:   slog.Default().With("component", "analysis"),
	}
}

func analysisCacheKey(req models.AnalysisRequest) string {
	return fmt.Sprintf("analysis:%s:%s", req.PoemTitle, req.PoemAuthor)
}

func fallbackAnalysis(req models.AnalysisRequest, cause error) string {
	return fmt.Sprintf(`【创作背景】这首%s是%s的代表作之一，创作于特定的历史时期。

【意象解读】诗中运用了丰富的意象手法，通过具体景物表达抽象情感。

【情感表达】作者通过这首诗抒发了深刻的思想感情，具有很高的艺术价值。

（注：当前使用备用分析结果，分析服务调用异常：%v）`, req.PoemTitle, req.PoemAuthor, cause)
}

func (s *AnalysisService) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	req.PoemTitle = strings.TrimSpace(req.PoemTitle)
	req.PoemAuthor = strings.TrimSpace(req.PoemAuthor)
	req.PoemContent = strings.TrimSpace(req.PoemContent)

	fieldErrors := make(map[string]string)
	if req.PoemTitle == "" {
		fieldErrors["poem_title"] = "Poem title is required"
	}
	if req.PoemContent == "" {
		fieldErrors["poem_content"] = "Poem content is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}
	if req.PoemAuthor == "" {
		req.PoemAuthor = UnknownAuthor
	}

	key := analysisCacheKey(req)
	if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
		return &models.AnalysisResponse{Analysis: cached, Model: s.analyzer.Model(), Cached: true}, nil
	}

	text, err := s.analyzer.AnalyzePoem(ctx, req)
	if err != nil {
		s.logger.Warn("analysis failed, serving fallback", "title", req.PoemTitle, "error", err)
		return &models.AnalysisResponse{
			Analysis: fallbackAnalysis(req, err),
			Model:    FallbackModel,
			Note:     fmt.Sprintf("API调用异常，使用备用分析: %v", err),
		}, nil
	}

	if err := s.redis.Set(ctx, key, text, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to cache analysis", "key", key, "error", err)
	}

	return &models.AnalysisResponse{Analysis: text, Model: s.analyzer.Model()}, nil
}

func (s *AnalysisService) IsCached(ctx context.Context, req models.AnalysisRequest) bool {
	n, err := s.redis.Exists(ctx, analysisCacheKey(req)).Result()
	return err == nil && n > 0
}

// RequestFor builds the analysis request for a stored poem.
func RequestFor(poem *models.Poem) models.AnalysisRequest {
	return models.AnalysisRequest{
		PoemTitle:   poem.Title,
		PoemAuthor:  authorName(poem),
		PoemContent: poem.Content,
	}
}

// Prefetch queues an analysis job for poem unless its analysis is cached.
func (s *AnalysisService) Prefetch(ctx context.Context, poem *models.Poem) error {
	req := RequestFor(poem)
	if s.IsCached(ctx, req) {
		return nil
	}

	job := models.AnalysisJob{ID: uuid.New(), PoemID: poem.ID, Request: req}
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.LPush(ctx, AnalysisQueue, string(jobBytes)).Err()
}

// AssistantAnalyzer asks the built-in poetry assistant for an analysis.
type AssistantAnalyzer struct {
	assistant *assistant.Service
}

func NewAssistantAnalyzer(svc *assistant.Service) *AssistantAnalyzer {
	return &AssistantAnalyzer{assistant: svc}
}

func (a *AssistantAnalyzer) Model() string { return "shijian-assistant" }

func (a *AssistantAnalyzer) AnalyzePoem(ctx context.Context, req models.AnalysisRequest) (string, error) {
	question := fmt.Sprintf("请赏析%s的《%s》：%s", req.PoemAuthor, req.PoemTitle, req.PoemContent)
	return a.assistant.SimpleChat(ctx, question)
}
