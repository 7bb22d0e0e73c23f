package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

var (
	// ErrTestCaseNotFound is returned for ids missing from the loaded list.
	ErrTestCaseNotFound = errors.New("test case not found")
	// ErrTestCaseNotExpanded is returned when editing a collapsed test case.
	ErrTestCaseNotExpanded = errors.New("test case is not expanded")
	// ErrPaneNotLoaded is returned when saving a pane whose content never loaded.
	ErrPaneNotLoaded = errors.New("test case content has not been loaded")
	// ErrCreateInProgress is returned while a create is running.
	ErrCreateInProgress = errors.New("a test case is already being created")
	// ErrUnknownPane is returned for a pane other than input or output.
	ErrUnknownPane = errors.New("pane must be input or output")
)

type testCasePane struct {
	loaded  bool
	content string
	err     string
	save    *SaveTracker
}

// testCasePanel holds the two panes of an expanded test case.
type testCasePanel struct {
	testCaseID uint

	mu       sync.Mutex
	loading  bool
	firstErr string
	panes    map[classroom.TestCasePart]*testCasePane
}

func (p *testCasePanel) pane(part classroom.TestCasePart) *testCasePane {
	return p.panes[part]
}

func (p *testCasePanel) view() dto.TestCasePanelView {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := dto.TestCasePanelView{
		TestCaseID: p.testCaseID,
		Error:      p.firstErr,
		Input:      paneView(p.panes[classroom.TestCaseInput]),
		Output:     paneView(p.panes[classroom.TestCaseOutput]),
	}

	input, output := p.panes[classroom.TestCaseInput], p.panes[classroom.TestCaseOutput]
	switch {
	case p.loading:
		view.State = dto.PanelLoading
	case input.loaded && output.loaded:
		view.State = dto.PanelReady
	case input.loaded || output.loaded:
		view.State = dto.PanelPartial
	default:
		view.State = dto.PanelFailed
	}
	return view
}

func paneView(pane *testCasePane) dto.PaneView {
	state, message := pane.save.State()
	return dto.PaneView{
		Loaded:    pane.loaded,
		Content:   pane.content,
		Error:     pane.err,
		SaveState: string(state),
		SaveError: message,
	}
}

// TestCaseEditor manages the test cases of one assignment: listing,
// creating, deleting and editing the input and output of expanded cases.
type TestCaseEditor struct {
	assignmentID uint
	gateway      classroom.Client
	events       EventPublisher
	validator    *validator.Validate
	cfg          WorkspaceConfig
	logger       zerolog.Logger

	mu        sync.Mutex
	testCases []models.TestCase
	loaded    bool
	listErr   string
	listSeq   uint64
	creating  bool
	createErr string
	deleteErr string
	expanded  map[uint]bool
	deleting  map[uint]bool
	panels    map[uint]*testCasePanel
}

// NewTestCaseEditor constructs an empty editor for an assignment.
func NewTestCaseEditor(assignmentID uint, gateway classroom.Client, events EventPublisher, validate *validator.Validate, cfg WorkspaceConfig, logger zerolog.Logger) *TestCaseEditor {
	return &TestCaseEditor{
		assignmentID: assignmentID,
		gateway:      gateway,
		events:       events,
		validator:    validate,
		cfg:          cfg.withDefaults(),
		logger:       logger.With().Str("component", "test_case_editor").Uint("assignment_id", assignmentID).Logger(),
		expanded:     make(map[uint]bool),
		deleting:     make(map[uint]bool),
		panels:       make(map[uint]*testCasePanel),
	}
}

// Refresh reloads the list. State of test cases that disappeared is dropped.
func (e *TestCaseEditor) Refresh(ctx context.Context) error {
	e.mu.Lock()
	e.listSeq++
	seq := e.listSeq
	e.mu.Unlock()

	testCases, err := e.gateway.ListTestCases(ctx, e.assignmentID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if seq != e.listSeq {
		return nil
	}
	if err != nil {
		e.listErr = classroom.Message(err)
		return err
	}

	sort.SliceStable(testCases, func(i, j int) bool { return testCases[i].ID < testCases[j].ID })
	e.testCases = testCases
	e.loaded = true
	e.listErr = ""

	present := make(map[uint]bool, len(testCases))
	for _, testCase := range testCases {
		present[testCase.ID] = true
	}
	for id := range e.expanded {
		if !present[id] {
			delete(e.expanded, id)
			delete(e.panels, id)
		}
	}
	return nil
}

// Create validates the request locally and creates the test case. Invalid
// requests never reach the platform.
func (e *TestCaseEditor) Create(ctx context.Context, req dto.TestCaseCreateRequest) (dto.TestCaseView, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := e.validator.Struct(req); err != nil {
		return dto.TestCaseView{}, err
	}

	e.mu.Lock()
	if e.creating {
		e.mu.Unlock()
		return dto.TestCaseView{}, ErrCreateInProgress
	}
	e.creating = true
	e.createErr = ""
	e.mu.Unlock()

	created, err := e.gateway.CreateTestCase(ctx, e.assignmentID, classroom.TestCaseCreate{
		Name:               req.Name,
		Points:             req.Points,
		MaxExecutionTimeMs: req.MaxExecutionTimeMs,
		MaxRAMMB:           req.MaxRAMMB,
		Visible:            req.Visible,
	})

	e.mu.Lock()
	e.creating = false
	if err != nil {
		e.createErr = classroom.Message(err)
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn().Err(err).Str("name", req.Name).Msg("failed to create test case")
		return dto.TestCaseView{}, err
	}

	publish(e.events, dto.WorkbenchEvent{
		Type:         dto.EventTestCaseCreated,
		AssignmentID: e.assignmentID,
		Subject:      created.InputFileName,
	})
	if err := e.Refresh(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("refresh after create failed")
	}
	return dto.NewTestCaseView(created, false, false), nil
}

// Delete removes a test case after explicit confirmation.
func (e *TestCaseEditor) Delete(ctx context.Context, testCaseID uint, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	e.mu.Lock()
	if e.deleting[testCaseID] {
		e.mu.Unlock()
		return ErrDeleteInProgress
	}
	e.deleting[testCaseID] = true
	e.deleteErr = ""
	e.mu.Unlock()

	err := e.gateway.DeleteTestCase(ctx, e.assignmentID, testCaseID)

	e.mu.Lock()
	delete(e.deleting, testCaseID)
	if err != nil {
		e.deleteErr = classroom.Message(err)
	} else {
		delete(e.expanded, testCaseID)
		delete(e.panels, testCaseID)
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn().Err(err).Uint("test_case_id", testCaseID).Msg("failed to delete test case")
		return err
	}

	publish(e.events, dto.WorkbenchEvent{
		Type:         dto.EventTestCaseDeleted,
		AssignmentID: e.assignmentID,
	})
	if err := e.Refresh(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("refresh after delete failed")
	}
	return nil
}

// Expand opens the panel of a test case and fetches its input and output
// concurrently. Either half may fail on its own; the panel then reports the
// first failure and keeps whichever half did load.
func (e *TestCaseEditor) Expand(ctx context.Context, testCaseID uint) (dto.TestCasePanelView, error) {
	if !e.Loaded() {
		if err := e.Refresh(ctx); err != nil {
			return dto.TestCasePanelView{}, err
		}
	}

	e.mu.Lock()
	if !e.containsLocked(testCaseID) {
		e.mu.Unlock()
		return dto.TestCasePanelView{}, ErrTestCaseNotFound
	}
	panel := e.newPanel(testCaseID)
	e.expanded[testCaseID] = true
	e.panels[testCaseID] = panel
	e.mu.Unlock()

	var (
		group     errgroup.Group
		input     string
		output    string
		inputErr  error
		outputErr error
	)
	group.Go(func() error {
		input, inputErr = e.gateway.GetTestCaseContent(ctx, testCaseID, classroom.TestCaseInput)
		return inputErr
	})
	group.Go(func() error {
		output, outputErr = e.gateway.GetTestCaseContent(ctx, testCaseID, classroom.TestCaseOutput)
		return outputErr
	})
	firstErr := group.Wait()

	panel.mu.Lock()
	panel.loading = false
	applyPane(panel.pane(classroom.TestCaseInput), input, inputErr)
	applyPane(panel.pane(classroom.TestCaseOutput), output, outputErr)
	if firstErr != nil {
		panel.firstErr = classroom.Message(firstErr)
	}
	panel.mu.Unlock()

	view := panel.view()
	publish(e.events, dto.WorkbenchEvent{
		Type:         dto.EventTestCasePanel,
		AssignmentID: e.assignmentID,
		State:        view.State,
		Message:      view.Error,
	})
	if firstErr != nil {
		e.logger.Warn().Err(firstErr).Uint("test_case_id", testCaseID).Str("state", view.State).Msg("test case content load incomplete")
	}
	return view, nil
}

// Loaded reports whether the list has been fetched at least once.
func (e *TestCaseEditor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Collapse closes the panel. Unsaved pane edits are dropped.
func (e *TestCaseEditor) Collapse(testCaseID uint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.expanded, testCaseID)
	delete(e.panels, testCaseID)
}

// EditPane replaces the content of one pane.
func (e *TestCaseEditor) EditPane(testCaseID uint, part classroom.TestCasePart, content string) error {
	pane, panel, err := e.lookupPane(testCaseID, part)
	if err != nil {
		return err
	}

	panel.mu.Lock()
	if !pane.loaded {
		panel.mu.Unlock()
		return ErrPaneNotLoaded
	}
	pane.content = content
	panel.mu.Unlock()

	pane.save.Touch()
	return nil
}

// SavePane persists one pane. Input and output save independently.
func (e *TestCaseEditor) SavePane(ctx context.Context, testCaseID uint, part classroom.TestCasePart) error {
	pane, panel, err := e.lookupPane(testCaseID, part)
	if err != nil {
		return err
	}

	panel.mu.Lock()
	if !pane.loaded {
		panel.mu.Unlock()
		return ErrPaneNotLoaded
	}
	content := pane.content
	panel.mu.Unlock()

	seq := pane.save.Begin()
	err = e.gateway.SaveTestCaseContent(ctx, testCaseID, part, content)
	pane.save.Finish(seq, err)
	return err
}

// Panel renders the panel of an expanded test case.
func (e *TestCaseEditor) Panel(testCaseID uint) (dto.TestCasePanelView, error) {
	e.mu.Lock()
	panel, ok := e.panels[testCaseID]
	e.mu.Unlock()
	if !ok {
		return dto.TestCasePanelView{}, ErrTestCaseNotExpanded
	}
	return panel.view(), nil
}

// View renders the list with its expanded panels.
func (e *TestCaseEditor) View() dto.TestCaseListView {
	e.mu.Lock()
	view := dto.TestCaseListView{
		AssignmentID: e.assignmentID,
		Loaded:       e.loaded,
		Error:        e.listErr,
		Creating:     e.creating,
		CreateError:  e.createErr,
		DeleteError:  e.deleteErr,
		TestCases:    make([]dto.TestCaseView, 0, len(e.testCases)),
		Panels:       []dto.TestCasePanelView{},
	}
	panels := make([]*testCasePanel, 0, len(e.panels))
	for _, testCase := range e.testCases {
		view.TestCases = append(view.TestCases, dto.NewTestCaseView(testCase, e.expanded[testCase.ID], e.deleting[testCase.ID]))
		if panel, ok := e.panels[testCase.ID]; ok {
			panels = append(panels, panel)
		}
	}
	e.mu.Unlock()

	for _, panel := range panels {
		view.Panels = append(view.Panels, panel.view())
	}
	return view
}

func (e *TestCaseEditor) newPanel(testCaseID uint) *testCasePanel {
	panel := &testCasePanel{
		testCaseID: testCaseID,
		loading:    true,
		panes:      make(map[classroom.TestCasePart]*testCasePane, 2),
	}
	for _, part := range []classroom.TestCasePart{classroom.TestCaseInput, classroom.TestCaseOutput} {
		panel.panes[part] = &testCasePane{
			save: NewSaveTracker("test_case_"+string(part), e.cfg.SaveFeedbackDelay, e.cfg.AfterFunc, func(state SaveState, message string) {
				publish(e.events, dto.WorkbenchEvent{
					Type:         dto.EventSaveState,
					AssignmentID: e.assignmentID,
					Subject:      "test_case_" + string(part),
					State:        string(state),
					Message:      message,
				})
			}),
		}
	}
	return panel
}

func (e *TestCaseEditor) lookupPane(testCaseID uint, part classroom.TestCasePart) (*testCasePane, *testCasePanel, error) {
	if !part.Valid() {
		return nil, nil, ErrUnknownPane
	}

	e.mu.Lock()
	panel, ok := e.panels[testCaseID]
	e.mu.Unlock()
	if !ok {
		return nil, nil, ErrTestCaseNotExpanded
	}
	return panel.pane(part), panel, nil
}

func (e *TestCaseEditor) containsLocked(testCaseID uint) bool {
	for _, testCase := range e.testCases {
		if testCase.ID == testCaseID {
			return true
		}
	}
	return false
}

func applyPane(pane *testCasePane, content string, err error) {
	if err != nil {
		pane.loaded = false
		pane.err = classroom.Message(err)
		return
	}
	pane.loaded = true
	pane.content = content
	pane.err = ""
}
