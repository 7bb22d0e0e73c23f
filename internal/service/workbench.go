package service

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

// Workbench hands out one workspace and one test-case editor per assignment,
// creating them on first use.
type Workbench struct {
	gateway   classroom.Client
	events    EventPublisher
	validator *validator.Validate
	cfg       WorkspaceConfig
	logger    zerolog.Logger

	mu         sync.Mutex
	workspaces map[uint]*Workspace
	testCases  map[uint]*TestCaseEditor
}

// NewWorkbench constructs an empty workbench.
func NewWorkbench(gateway classroom.Client, events EventPublisher, validate *validator.Validate, cfg WorkspaceConfig, logger zerolog.Logger) *Workbench {
	return &Workbench{
		gateway:    gateway,
		events:     events,
		validator:  validate,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		workspaces: make(map[uint]*Workspace),
		testCases:  make(map[uint]*TestCaseEditor),
	}
}

// Workspace returns the workspace of an assignment.
func (w *Workbench) Workspace(assignmentID uint) *Workspace {
	w.mu.Lock()
	defer w.mu.Unlock()

	workspace, ok := w.workspaces[assignmentID]
	if !ok {
		workspace = NewWorkspace(assignmentID, w.gateway, w.events, w.cfg, w.logger)
		w.workspaces[assignmentID] = workspace
	}
	return workspace
}

// TestCases returns the test-case editor of an assignment.
func (w *Workbench) TestCases(assignmentID uint) *TestCaseEditor {
	w.mu.Lock()
	defer w.mu.Unlock()

	editor, ok := w.testCases[assignmentID]
	if !ok {
		editor = NewTestCaseEditor(assignmentID, w.gateway, w.events, w.validator, w.cfg, w.logger)
		w.testCases[assignmentID] = editor
	}
	return editor
}

// Reset drops every workspace, for example when the session ends.
func (w *Workbench) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, workspace := range w.workspaces {
		workspace.CloseSolution()
	}
	w.workspaces = make(map[uint]*Workspace)
	w.testCases = make(map[uint]*TestCaseEditor)
}
