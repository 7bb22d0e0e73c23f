package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workbench/internal/classroomtest"
	"github.com/noah-isme/gema-workbench/internal/config"
	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/handler"
	"github.com/noah-isme/gema-workbench/internal/middleware"
	"github.com/noah-isme/gema-workbench/internal/router"
	"github.com/noah-isme/gema-workbench/internal/service"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	server   *classroomtest.Server
	app      *fiber.App
	hub      *service.EventHub
	sessions *service.SessionManager
	source   *signallingSource
}

// signallingSource reports each new subscription so tests can publish only
// once a stream is listening.
type signallingSource struct {
	hub        *service.EventHub
	subscribed chan uint
}

func (s *signallingSource) Subscribe(assignmentID uint) (<-chan dto.WorkbenchEvent, func()) {
	events, cancel := s.hub.Subscribe(assignmentID)
	s.subscribed <- assignmentID
	return events, cancel
}

func newHarness(t *testing.T) harness {
	t.Helper()

	server := classroomtest.New(t)
	sessions := service.NewSessionManager(service.NewMemorySessionStore(), time.Now, zerolog.Nop())

	gateway, err := classroom.New(classroom.Config{
		BaseURL:       server.URL,
		Timeout:       5 * time.Second,
		Tokens:        sessions,
		CorrelationID: middleware.CorrelationIDFromContext,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	hub := service.NewEventHub(nil, "", zerolog.Nop())
	source := &signallingSource{hub: hub, subscribed: make(chan uint, 4)}
	validate := dto.NewValidator()
	workbench := service.NewWorkbench(gateway, hub, validate, service.WorkspaceConfig{
		SolutionFileName:  "main.cpp",
		DefaultLanguage:   "cpp",
		SaveFeedbackDelay: time.Hour,
	}, zerolog.Nop())

	cfg := config.Config{AppName: "workbench-test", EvaluationLimit: 100, EvaluationWindow: time.Minute}
	app := fiber.New()
	middleware.Register(app, middleware.Config{})
	router.Register(app, cfg, router.Dependencies{
		SessionHandler:   handler.NewSessionHandler(sessions, workbench, validate, zerolog.Nop()),
		WorkspaceHandler: handler.NewWorkspaceHandler(workbench, validate, zerolog.Nop()),
		TestCaseHandler:  handler.NewTestCaseHandler(workbench, validate, zerolog.Nop()),
		EventHandler:     handler.NewEventHandler(source, zerolog.Nop()),
		Sessions:         sessions,
		Gatherer:         prometheus.NewRegistry(),
	})

	return harness{server: server, app: app, hub: hub, sessions: sessions, source: source}
}

func studentToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "7",
		"role": "Student",
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("platform-secret"))
	require.NoError(t, err)
	return signed
}

func (h harness) signIn(t *testing.T) string {
	t.Helper()
	token := studentToken(t, time.Now().Add(time.Hour))
	resp := h.doJSON(t, http.MethodPost, "/api/v1/session", map[string]string{"token": token})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	return token
}

func (h harness) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (h harness) doJSON(t *testing.T, method, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target interface{}) envelope {
	t.Helper()
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	if target != nil && len(payload.Data) > 0 {
		require.NoError(t, json.Unmarshal(payload.Data, target))
	}
	return payload
}

func multipartUpload(t *testing.T, name string, content []byte) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}
