// Package embedding реализует клиент внешнего сервиса эмбеддингов (CLIP).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Пути сервиса эмбеддингов.
const (
	EndpointEmbedImage = "/embed-image"
	EndpointSearch     = "/search"
	EndpointHealth     = "/health"
)

// maxReasonLen - сколько байт тела ошибки попадает в RejectedError.Reason.
const maxReasonLen = 512

// Recorder получает результат каждого запроса к сервису.
type Recorder interface {
	ObserveRequest(endpoint, outcome string, duration time.Duration)
}

// Client - HTTP клиент сервиса эмбеддингов. Безопасен для параллельного использования.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	embedTimeout  time.Duration
	searchTimeout time.Duration
	healthTimeout time.Duration
	recorder      Recorder
	logger        *slog.Logger
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт HTTP клиент (для тестов и кастомного транспорта).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeouts задаёт таймауты запросов. Нулевые значения не меняют умолчания.
func WithTimeouts(embed, search, health time.Duration) Option {
	return func(c *Client) {
		if embed > 0 {
			c.embedTimeout = embed
		}
		if search > 0 {
			c.searchTimeout = search
		}
		if health > 0 {
			c.healthTimeout = health
		}
	}
}

// WithRecorder задаёт получателя метрик запросов.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLogger задаёт логгер клиента.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New создаёт клиент сервиса эмбеддингов.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		embedTimeout:  30 * time.Second,
		searchTimeout: 30 * time.Second,
		healthTimeout: 5 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL возвращает базовый URL сервиса.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type embedRequest struct {
	ImagePath string `json:"image_path"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedImage запрашивает эмбеддинг одного изображения.
func (c *Client) EmbedImage(ctx context.Context, imagePath string) ([]float64, error) {
	var resp embedResponse
	if err := c.do(ctx, http.MethodPost, EndpointEmbedImage, c.embedTimeout, embedRequest{ImagePath: imagePath}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("сервис вернул пустой эмбеддинг для %s", imagePath)
	}
	return resp.Embedding, nil
}

// Match - результат поиска.
type Match struct {
	ImageID    int64   `json:"image_id"`
	Similarity float64 `json:"similarity"`
}

// UnmarshalJSON принимает image_id числом или строкой, в том числе целое с дробной частью (42.0).
func (m *Match) UnmarshalJSON(data []byte) error {
	var raw struct {
		ImageID    json.RawMessage `json:"image_id"`
		Similarity float64         `json:"similarity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := parseImageID(raw.ImageID)
	if err != nil {
		return err
	}

	m.ImageID = id
	m.Similarity = raw.Similarity
	return nil
}

func parseImageID(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, fmt.Errorf("отсутствует image_id")
	}
	s = strings.Trim(s, `"`)

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("некорректный image_id %s", raw)
	}
	return int64(f), nil
}

type searchRequest struct {
	Query           string               `json:"query"`
	ImageEmbeddings map[string][]float64 `json:"image_embeddings"`
	TopK            int                  `json:"top_k"`
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// Search ранжирует эмбеддинги изображений по текстовому запросу.
// Порядок результата - порядок, который вернул сервис.
// Результаты с некорректным image_id пропускаются.
func (c *Client) Search(ctx context.Context, query string, embeddings map[int64][]float64, topK int) ([]Match, error) {
	req := searchRequest{
		Query:           query,
		ImageEmbeddings: make(map[string][]float64, len(embeddings)),
		TopK:            topK,
	}
	for id, vec := range embeddings {
		req.ImageEmbeddings[strconv.FormatInt(id, 10)] = vec
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, EndpointSearch, c.searchTimeout, req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Results))
	for _, raw := range resp.Results {
		var m Match
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Warn("пропущен результат поиска", "result", string(raw), "error", err)
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Health - ответ /health.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Health запрашивает состояние сервиса.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, EndpointHealth, c.healthTimeout, nil, &h)
	return h, err
}

// Available возвращает true, если сервис отвечает и модель загружена.
func (c *Client) Available(ctx context.Context) bool {
	h, err := c.Health(ctx)
	return err == nil && h.ModelLoaded
}

// do выполняет JSON запрос с собственным таймаутом и классифицирует ошибки.
func (c *Client) do(ctx context.Context, method, endpoint string, timeout time.Duration, body, out any) (err error) {
	start := time.Now()
	if c.recorder != nil {
		defer func() { c.recorder.ObserveRequest(endpoint, Outcome(err), time.Since(start)) }()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("не удалось сериализовать запрос %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("не удалось создать запрос %s: %w", endpoint, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransport(endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &RejectedError{Endpoint: endpoint, Status: resp.StatusCode, Reason: extractReason(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return classifyDecode(endpoint, err)
	}
	return nil
}

// classifyDecode отделяет таймаут при чтении тела от некорректного JSON.
func classifyDecode(endpoint string, err error) error {
	classified := classifyTransport(endpoint, err)
	if Outcome(classified) == "timeout" {
		return classified
	}
	return fmt.Errorf("некорректный ответ %s: %w", endpoint, err)
}

// extractReason достаёт сообщение об ошибке из JSON тела или возвращает текст как есть.
func extractReason(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		for _, s := range []string{body.Error, body.Detail, body.Message} {
			if s != "" {
				return s
			}
		}
	}

	reason := strings.TrimSpace(string(data))
	if len(reason) > maxReasonLen {
		// обрезаем по границе руны
		cut := maxReasonLen
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	return reason
}
