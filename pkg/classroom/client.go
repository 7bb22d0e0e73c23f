package classroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-workbench/internal/models"
)

// Client is the set of platform calls the workbench depends on.
type Client interface {
	GetAssignment(ctx context.Context, assignmentID uint) (models.Assignment, error)
	GetMySubmission(ctx context.Context, assignmentID uint) (models.Submission, error)
	UploadFile(ctx context.Context, assignmentID uint, upload FileUpload) (models.SubmittedFile, error)
	CreateVirtualFile(ctx context.Context, assignmentID uint, name string) (models.SubmittedFile, error)
	GetFileContent(ctx context.Context, submissionID, fileID uint) (string, error)
	SaveFileContent(ctx context.Context, submissionID, fileID uint, content string) error
	DeleteFile(ctx context.Context, submissionID, fileID uint) error
	SubmitSubmission(ctx context.Context, assignmentID uint) error
	ListTestCases(ctx context.Context, assignmentID uint) ([]models.TestCase, error)
	CreateTestCase(ctx context.Context, assignmentID uint, payload TestCaseCreate) (models.TestCase, error)
	DeleteTestCase(ctx context.Context, assignmentID, testCaseID uint) error
	GetTestCaseContent(ctx context.Context, testCaseID uint, part TestCasePart) (string, error)
	SaveTestCaseContent(ctx context.Context, testCaseID uint, part TestCasePart, content string) error
	TriggerEvaluation(ctx context.Context, submissionID uint, language string) (models.EvaluationResult, error)
}

// TokenSource supplies the bearer token attached to every call. Returning an
// error aborts the call before anything is sent.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config groups client configuration values.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	Transport     http.RoundTripper
	Tokens        TokenSource
	CorrelationID func(ctx context.Context) string
	Logger        zerolog.Logger
}

// HTTPClient implements Client over the platform's REST API.
type HTTPClient struct {
	baseURL       string
	http          *http.Client
	tokens        TokenSource
	correlationID func(ctx context.Context) string
	tracer        trace.Tracer
	logger        zerolog.Logger
}

// New constructs an HTTP backed platform client.
func New(cfg Config) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("classroom base url must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid classroom base url: %w", err)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &HTTPClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		tokens:        cfg.Tokens,
		correlationID: cfg.CorrelationID,
		tracer:        otel.Tracer("github.com/noah-isme/gema-workbench/pkg/classroom"),
		logger:        cfg.Logger.With().Str("component", "classroom_client").Logger(),
	}, nil
}

type request struct {
	operation   string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func (c *HTTPClient) do(ctx context.Context, req request) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "classroom."+req.operation, trace.WithAttributes(
		attribute.String("http.method", req.method),
		attribute.String("classroom.path", req.path),
	))
	defer span.End()

	start := time.Now()
	body, err := c.send(ctx, req)
	elapsed := time.Since(start)

	requestDuration.WithLabelValues(req.operation).Observe(elapsed.Seconds())
	requestsTotal.WithLabelValues(req.operation, outcomeLabel(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Message(err))
		event := c.logger.Warn()
		if IsNotFound(err) {
			event = c.logger.Debug()
		}
		event.Err(err).Str("operation", req.operation).Dur("elapsed", elapsed).Msg("classroom call failed")
		return nil, err
	}

	c.logger.Debug().Str("operation", req.operation).Dur("elapsed", elapsed).Msg("classroom call completed")
	return body, nil
}

func (c *HTTPClient) send(ctx context.Context, req request) ([]byte, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var reader io.Reader
	if req.body != nil {
		reader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.operation, err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json, text/plain")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if c.correlationID != nil {
		if id := c.correlationID(ctx); id != "" {
			httpReq.Header.Set("X-Correlation-ID", id)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &APIError{Message: FallbackErrorMessage, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: FallbackErrorMessage, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	return body, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, req request, out interface{}) error {
	body, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, req.operation, err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	message := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		message = strings.TrimSpace(payload.Message)
	}
	if message == "" {
		message = FallbackErrorMessage
	}
	return &APIError{StatusCode: status, Message: message}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsNotFound(err):
		return "not_found"
	default:
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 0 {
			return "transport_error"
		}
		return "error"
	}
}

func jsonBody(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return payload, nil
}

func idPath(format string, ids ...uint) string {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return fmt.Sprintf(format, args...)
}
