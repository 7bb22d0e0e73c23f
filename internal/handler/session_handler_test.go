package handler_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
)

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/v1/session")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	h.signIn(t)

	resp = h.do(t, http.MethodGet, "/api/v1/session")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var session dto.SessionResponse
	decode(t, resp, &session)
	require.Equal(t, "7", session.UserID)
	require.Equal(t, "student", session.Role)
	require.NotNil(t, session.ExpiresAt)

	resp = h.do(t, http.MethodDelete, "/api/v1/session")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/v1/session")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestSessionRejectsMalformedToken(t *testing.T) {
	h := newHarness(t)

	resp := h.doJSON(t, http.MethodPost, "/api/v1/session", map[string]string{"token": "not-a-token"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = h.doJSON(t, http.MethodPost, "/api/v1/session", map[string]string{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSessionRejectsExpiredToken(t *testing.T) {
	h := newHarness(t)

	token := studentToken(t, time.Now().Add(-time.Minute))
	resp := h.doJSON(t, http.MethodPost, "/api/v1/session", map[string]string{"token": token})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestEndingSessionDropsWorkspaces(t *testing.T) {
	h := newHarness(t)
	h.server.AddAssignment(models.Assignment{ID: 1, IsCodeAssignment: true})
	h.signIn(t)

	resp := h.do(t, http.MethodPost, "/api/v1/assignments/1/solution/open")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, "/api/v1/session")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	h.signIn(t)
	resp = h.do(t, http.MethodGet, "/api/v1/assignments/1/solution")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var editor dto.EditorView
	decode(t, resp, &editor)
	require.False(t, editor.Open)
	require.Equal(t, 2, h.server.Calls("get_assignment"))
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/v1/health")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "workbench-test", resp.Header.Get("X-Application"))
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/metrics")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
