package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"mail-summary-service/pkg/circuitbreaker"
	"mail-summary-service/pkg/logger"
	"mail-summary-service/pkg/metrics"
	"mail-summary-service/pkg/otel"
	"mail-summary-service/pkg/trace"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"

	maxErrorBody = 2048
)

// Client 调用外部模型，返回模型生成的原始 JSON
type Client interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

type notConfiguredError struct{}

func (notConfiguredError) Error() string {
	return "gemini client is not initialized: please set GEMINI_API_KEY"
}

func (notConfiguredError) ErrorType() string { return "not_configured" }

// ErrNotConfigured 未配置 API key 时每次调用都返回该错误，不会发起网络请求
var ErrNotConfigured error = notConfiguredError{}

// StatusError 上游返回非 2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) ErrorType() string {
	if e.StatusCode >= 500 {
		return "upstream_5xx"
	}
	return "upstream_error"
}

// Config Gemini 客户端配置
type Config struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"` // 0 表示不限制
}

// Configured 是否配置了 API key
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// GeminiClient 通过 REST generateContent 接口调用 Gemini，带熔断器
type GeminiClient struct {
	cfg        Config
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewGeminiClient(cfg Config, logger *zap.Logger) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cbConfig := circuitbreaker.Config{
		FailureThreshold:    5,
		SuccessThreshold:    1,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 1,
		IsFailure:           isUpstreamFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("Gemini circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &GeminiClient{
		cfg: cfg,
		// 超时由每次调用的 context 控制
		httpClient: &http.Client{},
		cb:         circuitbreaker.NewCircuitBreaker(cbConfig),
		logger:     logger,
	}
}

// isUpstreamFailure 只有下游故障才计入熔断，4xx 和内容问题不计入
func isUpstreamFailure(err error) bool {
	var pe *ParseError
	if errors.As(err, &pe) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate 发送 prompt 并要求按 ResponseSchema 返回 JSON
func (c *GeminiClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if !c.cfg.Configured() {
		return nil, ErrNotConfigured
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var out []byte
	err := otel.Traced(ctx, "llm.generate_content", func(ctx context.Context) error {
		return c.cb.ExecuteContext(ctx, func(ctx context.Context) error {
			var callErr error
			out, callErr = c.call(ctx, prompt)
			return callErr
		})
	}, attribute.String("llm.model", c.cfg.Model))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GeminiClient) call(ctx context.Context, prompt string) ([]byte, error) {
	reqID := uuid.NewString()
	log := logger.WithTrace(ctx, c.logger).With(zap.String("req_id", reqID), zap.String("model", c.cfg.Model))
	start := time.Now()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   ResponseSchema(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + c.cfg.Model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName(), traceID)
	}

	log.Info("Gemini request", zap.Int("prompt_len", len(prompt)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordLLMCallLatency(c.cfg.Model, "error", time.Since(start))
		log.Error("Gemini request failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return nil, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordLLMCallLatency(c.cfg.Model, "error", time.Since(start))
		return nil, fmt.Errorf("read gemini response: %w", err)
	}

	latency := time.Since(start)
	if resp.StatusCode/100 != 2 {
		metrics.RecordLLMCallLatency(c.cfg.Model, fmt.Sprintf("%d", resp.StatusCode), latency)
		msg := string(raw)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		log.Warn("Gemini returned error status", zap.Int("status", resp.StatusCode), zap.Duration("took", latency))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}
	metrics.RecordLLMCallLatency(c.cfg.Model, "success", latency)

	text, err := extractText(raw)
	if err != nil {
		log.Warn("Gemini response unusable", zap.Error(err), zap.Int("bytes", len(raw)))
		return nil, err
	}

	log.Info("Gemini response received", zap.Int("bytes", len(text)), zap.Duration("took", latency))
	return text, nil
}

// extractText 拼接第一个候选的所有文本 part
func extractText(raw []byte) ([]byte, error) {
	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("decode gemini envelope: %w", err)}
	}
	if len(gr.Candidates) == 0 {
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			return nil, &ParseError{Err: fmt.Errorf("prompt blocked: %s", gr.PromptFeedback.BlockReason)}
		}
		return nil, &ParseError{Err: errors.New("no candidates in gemini response")}
	}

	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return nil, &ParseError{Err: fmt.Errorf("empty candidate (finish reason %q)", gr.Candidates[0].FinishReason)}
	}
	return []byte(b.String()), nil
}
