package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workbench/internal/classroomtest"
	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

type scheduled struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

// manualTimers collects scheduled callbacks so tests decide when they fire.
type manualTimers struct {
	mu    sync.Mutex
	tasks []*scheduled
}

func (m *manualTimers) After(d time.Duration, fn func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &scheduled{delay: d, fn: fn}
	m.tasks = append(m.tasks, task)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		wasPending := !task.stopped
		task.stopped = true
		return wasPending
	}
}

// FireAll runs every pending callback once.
func (m *manualTimers) FireAll() {
	m.mu.Lock()
	pending := make([]*scheduled, 0, len(m.tasks))
	for _, task := range m.tasks {
		if !task.stopped {
			task.stopped = true
			pending = append(pending, task)
		}
	}
	m.tasks = nil
	m.mu.Unlock()

	for _, task := range pending {
		task.fn()
	}
}

func (m *manualTimers) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, task := range m.tasks {
		if !task.stopped {
			count++
		}
	}
	return count
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) Publish(event dto.WorkbenchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.Type)
}

func (r *recordingPublisher) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newGateway(t *testing.T, server *classroomtest.Server) *classroom.HTTPClient {
	t.Helper()
	client, err := classroom.New(classroom.Config{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return client
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
