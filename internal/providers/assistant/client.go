package assistant

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
	"unicode"
	"unicode/utf8"

	"clinscribe/internal/domain"
)

const (
	opAnalyze   = "analyze"
	opTranslate = "translate"
	opRefine    = "refine"
	opVerify    = "verify"
)

// Config controls the assistant HTTP endpoints.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client calls the reasoning, translation, refinement and verification
// endpoints. Every error it returns is a *domain.ServiceError.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://assistant.clinscribe.local/v1"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type analyzeRequest struct {
	Transcript string `json:"transcript"`
}

type analyzeResponse struct {
	Output string `json:"output"`
}

// Analyze asks the reasoning model for a structured draft. The model output
// may arrive wrapped in a markdown code fence.
func (c *Client) Analyze(ctx context.Context, transcript string) (domain.ConsultationDraft, error) {
	var resp analyzeResponse
	if err := c.post(ctx, opAnalyze, analyzeRequest{Transcript: transcript}, &resp); err != nil {
		return domain.ConsultationDraft{}, err
	}

	var draft domain.ConsultationDraft
	if err := json.Unmarshal([]byte(stripFences(resp.Output)), &draft); err != nil {
		return domain.ConsultationDraft{}, domain.NewServiceFailure(opAnalyze, fmt.Errorf("decode draft: %w", err))
	}
	return draft, nil
}

type translateRequest struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

func (c *Client) Translate(ctx context.Context, text, from, to string) (domain.Translation, error) {
	var resp domain.Translation
	if err := c.post(ctx, opTranslate, translateRequest{Text: text, From: from, To: to}, &resp); err != nil {
		return domain.Translation{}, err
	}
	return resp, nil
}

type refineRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type refineResponse struct {
	Text string `json:"text"`
}

func (c *Client) Refine(ctx context.Context, text, language string) (string, error) {
	var resp refineResponse
	if err := c.post(ctx, opRefine, refineRequest{Text: text, Language: language}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

type verifyRequest struct {
	Medicine string `json:"medicine"`
	Dosage   string `json:"dosage"`
}

func (c *Client) Verify(ctx context.Context, medicine, dosage string) (domain.VerificationResult, error) {
	var resp domain.VerificationResult
	if err := c.post(ctx, opVerify, verifyRequest{Medicine: medicine, Dosage: dosage}, &resp); err != nil {
		return domain.VerificationResult{}, err
	}
	return resp, nil
}

type errorEnvelope struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, op string, body any, out any) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return domain.NewServiceFailure(op, errors.New("assistant api key is not configured"))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return domain.NewServiceFailure(op, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return domain.NewServiceFailure(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewServiceFailure(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.NewServiceFailure(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return classify(op, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.NewServiceFailure(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// classify maps rate limiting and exhausted quota to a retryable error.
func classify(op string, status int, body []byte) error {
	var envelope errorEnvelope
	_ = json.Unmarshal(body, &envelope)

	message := strings.TrimSpace(envelope.Error.Message)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	message = truncate(message, 256)

	err := fmt.Errorf("status %d: %s", status, message)
	if status == http.StatusTooManyRequests ||
		strings.EqualFold(envelope.Error.Status, "RESOURCE_EXHAUSTED") ||
		strings.Contains(message, "RESOURCE_EXHAUSTED") {
		return domain.NewQuotaError(op, err)
	}
	return domain.NewServiceFailure(op, err)
}

// stripFences returns the fenced block of a model reply: the text between
// the first and the last ``` with the fence info string (such as "json")
// removed. Replies without a fence are returned trimmed.
func stripFences(output string) string {
	trimmed := strings.TrimSpace(output)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}

	body := trimmed[start+3:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	if space := strings.IndexFunc(body, unicode.IsSpace); space > 0 && !strings.ContainsAny(body[:space], "{[\"") {
		body = body[space:]
	}
	return strings.TrimSpace(body)
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
