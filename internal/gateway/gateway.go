// Package gateway wraps the remote code-execution and AI-assist services
// behind bounded-deadline request/response calls with classified errors.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ANU-2524/JustCoding-sub000/internal/models"
)

// Default client-enforced deadlines, independent of any server-side
// timeout.
const (
	DefaultCompileTimeout = 45 * time.Second
	DefaultAssistTimeout  = 60 * time.Second
)

// UsageRecorder receives one counter bump per gateway invocation, before
// the network call resolves. Usage means attempted usage: failed calls
// still count. Satisfied by *ledger.Ledger.
type UsageRecorder interface {
	IncrementCounter(name string, amount int)
}

// Config holds the service endpoints and per-class deadlines.
type Config struct {
	ExecuteURL     string // base URL of the code-execution service
	AssistURL      string // base URL of the AI-assist service
	CompileTimeout time.Duration
	AssistTimeout  time.Duration
}

// Gateway issues HTTP requests against the execution and assist services.
// The hard deadline on every call comes from a per-call context, not from
// the transport, so a hung server cannot stall a call past its budget.
type Gateway struct {
	cfg        Config
	httpClient *http.Client
	usage      UsageRecorder
	logger     *logrus.Logger
}

func New(cfg Config, usage UsageRecorder, logger *logrus.Logger) *Gateway {
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = DefaultCompileTimeout
	}
	if cfg.AssistTimeout <= 0 {
		cfg.AssistTimeout = DefaultAssistTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Gateway{
		cfg: cfg,
		// No transport timeout: cancellation is driven entirely by the
		// per-call context deadline.
		httpClient: &http.Client{},
		usage:      usage,
		logger:     logger,
	}
}

type compileRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Stdin    string `json:"stdin"`
}

// Execute runs code on the execution service and returns its output.
func (g *Gateway) Execute(ctx context.Context, language, code, stdin string) (string, error) {
	g.record(models.CounterExecutionsRun)

	var resp struct {
		Output *string `json:"output"`
	}
	err := g.post(ctx, g.cfg.ExecuteURL+"/compile", compileRequest{
		Language: language,
		Code:     code,
		Stdin:    stdin,
	}, g.cfg.CompileTimeout, &resp)
	if err != nil {
		return "", err
	}
	if resp.Output == nil {
		return "", ErrEmptyResult
	}
	return *resp.Output, nil
}

// Visualize runs code through the step-by-step visualizer and returns the
// raw trace steps.
func (g *Gateway) Visualize(ctx context.Context, language, code, stdin string) (json.RawMessage, error) {
	g.record(models.CounterVisualizationsRun)

	var resp struct {
		Steps json.RawMessage `json:"steps"`
	}
	err := g.post(ctx, g.cfg.ExecuteURL+"/visualize", compileRequest{
		Language: language,
		Code:     code,
		Stdin:    stdin,
	}, g.cfg.CompileTimeout, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Steps) == 0 || string(resp.Steps) == "null" {
		return nil, ErrEmptyResult
	}
	return resp.Steps, nil
}

// Explain asks the AI-assist service to explain a question about code.
func (g *Gateway) Explain(ctx context.Context, question string) (string, error) {
	g.record(models.CounterAIExplain)

	var resp struct {
		Explanation *string `json:"explanation"`
	}
	err := g.post(ctx, g.cfg.AssistURL+"/assist/explain", map[string]string{
		"question": question,
	}, g.cfg.AssistTimeout, &resp)
	if err != nil {
		return "", err
	}
	if resp.Explanation == nil {
		return "", ErrEmptyResult
	}
	return *resp.Explanation, nil
}

// Debug asks the AI-assist service for help with a failing piece of code.
func (g *Gateway) Debug(ctx context.Context, code, errorMessage string) (string, error) {
	g.record(models.CounterAIDebug)

	var resp struct {
		DebugHelp *string `json:"debugHelp"`
	}
	err := g.post(ctx, g.cfg.AssistURL+"/assist/debug", map[string]string{
		"code":         code,
		"errorMessage": errorMessage,
	}, g.cfg.AssistTimeout, &resp)
	if err != nil {
		return "", err
	}
	if resp.DebugHelp == nil {
		return "", ErrEmptyResult
	}
	return *resp.DebugHelp, nil
}

func (g *Gateway) record(counter string) {
	if g.usage != nil {
		g.usage.IncrementCounter(counter, 1)
	}
}

func (g *Gateway) post(ctx context.Context, url string, body interface{}, deadline time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.WithFields(logrus.Fields{
				"url":     url,
				"elapsed": time.Since(start),
			}).Warn("gateway call hit deadline")
			return fmt.Errorf("%s: %w", url, ErrTimeout)
		}
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", url, ErrTimeout)
		}
		return &NetworkError{Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var fail struct {
			Error string `json:"error"`
		}
		json.Unmarshal(data, &fail)
		return &ServerError{Status: resp.StatusCode, Message: fail.Error}
	}

	if err := json.Unmarshal(data, out); err != nil {
		// Unparseable success body: same bucket as a parsed body missing
		// its field.
		return fmt.Errorf("%w: %v", ErrEmptyResult, err)
	}
	return nil
}
