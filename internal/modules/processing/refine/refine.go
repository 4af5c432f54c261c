// Package refine rewrites rough task descriptions into precise
// browser-automation instructions using an OpenAI-compatible model.
package refine

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	openai "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"go.uber.org/zap"

	"github.com/agentbrowse/core/internal/config"
	"github.com/agentbrowse/core/internal/pkg/response"
)

const (
	defaultModel    = "gpt-4o-mini"
	maxOutputTokens = 300

	systemPrompt = `You rewrite user requests into precise browser automation instructions.
Keep the user's intent and language. Output a single imperative instruction that names
the target site or URL when known, concrete steps, and the expected end state.
Do not add commentary, markdown, or quotes. Output the instruction only.`
)

var (
	ErrDisabled = errors.New("task refinement is disabled")

	errEmptyResponse = errors.New("model returned an empty response")
)

type RefineDTO struct {
	TaskDescription string `json:"taskDescription" binding:"required"`
}

type RefineResult struct {
	Original string `json:"original"`
	Refined  string `json:"refined"`
	Model    string `json:"model"`
}

type Service struct {
	cfg    config.AIConfig
	client openai.Client
	logger *zap.Logger
}

func NewService(cfg config.AIConfig, logger *zap.Logger) *Service {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(cfg.APIKey),
		openaioption.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}

	return &Service{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		logger: logger,
	}
}

// Enabled reports whether refinement calls will be attempted.
func (s *Service) Enabled() bool {
	return s.cfg.Enable && strings.TrimSpace(s.cfg.APIKey) != ""
}

// Refine asks the model to rewrite the task description. When refinement
// is disabled the original text is passed through unchanged.
func (s *Service) Refine(ctx context.Context, task string) (*RefineResult, error) {
	task = strings.TrimSpace(task)

	if !s.Enabled() {
		return &RefineResult{Original: task, Refined: task}, nil
	}

	model := strings.TrimSpace(s.cfg.Model)
	if model == "" {
		model = defaultModel
	}

	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(task),
		},
		MaxCompletionTokens: openai.Int(maxOutputTokens),
	})
	if err != nil {
		s.logger.Warn("task refinement failed", zap.String("model", model), zap.Error(err))
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, errEmptyResponse
	}

	refined := strings.TrimSpace(completion.Choices[0].Message.Content)
	if refined == "" {
		return nil, errEmptyResponse
	}

	return &RefineResult{Original: task, Refined: refined, Model: model}, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/tasks", authMW)

	g.POST("/refine", h.refine)
}

// POST /tasks/refine
func (h *Handler) refine(c *gin.Context) {
	var dto RefineDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "taskDescription is required")
		return
	}

	result, err := h.svc.Refine(c.Request.Context(), dto.TaskDescription)
	if err != nil {
		response.UnprocessableEntity(c, "could not refine the task description")
		return
	}

	response.OK(c, result)
}
