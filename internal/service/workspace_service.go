package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

var (
	// ErrSubmissionLocked is returned by mutations once the submission is turned in or graded.
	ErrSubmissionLocked = errors.New("submission has been turned in and can no longer be modified")
	// ErrEvaluationInProgress is returned while an evaluation is running.
	ErrEvaluationInProgress = errors.New("an evaluation is in progress")
	// ErrWorkspaceNotLoaded is returned before the first successful load.
	ErrWorkspaceNotLoaded = errors.New("workspace has not been loaded")
	// ErrSubmissionUnknown is returned by mutations while the submission could not be fetched.
	ErrSubmissionUnknown = errors.New("your submission could not be loaded, refresh the workspace and try again")
	// ErrNotCodeAssignment is returned when evaluating a non-code assignment.
	ErrNotCodeAssignment = errors.New("assignment does not accept code evaluation")
	// ErrNothingToTurnIn is returned when turning in before a submission exists.
	ErrNothingToTurnIn = errors.New("there is nothing to turn in yet")
	// ErrTurnInInProgress is returned while a turn-in is running.
	ErrTurnInInProgress = errors.New("turn in already in progress")
	// ErrConfirmationRequired is returned by destructive actions that were not confirmed.
	ErrConfirmationRequired = errors.New("this action requires confirmation")
)

// WorkspaceConfig holds the settings shared by every workspace.
type WorkspaceConfig struct {
	SolutionFileName  string
	DefaultLanguage   string
	SaveFeedbackDelay time.Duration
	AfterFunc         AfterFunc
	Now               func() time.Time
}

func (c WorkspaceConfig) withDefaults() WorkspaceConfig {
	if c.SolutionFileName == "" {
		c.SolutionFileName = "main.cpp"
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "cpp"
	}
	if c.SaveFeedbackDelay <= 0 {
		c.SaveFeedbackDelay = 2 * time.Second
	}
	if c.AfterFunc == nil {
		c.AfterFunc = RealAfterFunc
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Workspace owns the assignment and submission snapshots for one assignment
// and gates every mutation on the derived submission state.
type Workspace struct {
	assignmentID uint
	gateway      classroom.Client
	events       EventPublisher
	cfg          WorkspaceConfig
	logger       zerolog.Logger
	tracer       trace.Tracer
	instructions *bluemonday.Policy
	feedback     *bluemonday.Policy

	editor      *SolutionEditor
	attachments *AttachmentManager
	evaluation  *EvaluationOrchestrator

	mu         sync.Mutex
	assignment *models.Assignment
	submission *models.Submission
	state      SubmissionState
	loaded     bool
	known      bool
	loadErr    string
	refetches  uint64
	turningIn  bool
	turnInErr  string
}

// NewWorkspace constructs an unloaded workspace for an assignment.
func NewWorkspace(assignmentID uint, gateway classroom.Client, events EventPublisher, cfg WorkspaceConfig, logger zerolog.Logger) *Workspace {
	cfg = cfg.withDefaults()
	logger = logger.With().Str("component", "workspace").Uint("assignment_id", assignmentID).Logger()

	w := &Workspace{
		assignmentID: assignmentID,
		gateway:      gateway,
		events:       events,
		cfg:          cfg,
		logger:       logger,
		tracer:       otel.Tracer("github.com/noah-isme/gema-workbench/internal/service/workspace"),
		instructions: bluemonday.UGCPolicy(),
		feedback:     bluemonday.StrictPolicy(),
		state:        DeriveSubmissionState(nil),
	}
	w.editor = newSolutionEditor(assignmentID, gateway, w, events, cfg, logger)
	w.attachments = newAttachmentManager(assignmentID, gateway, w, events, cfg, logger)
	w.evaluation = newEvaluationOrchestrator(assignmentID, gateway, w, events, cfg, logger)
	return w
}

// AssignmentID returns the assignment this workspace belongs to.
func (w *Workspace) AssignmentID() uint {
	return w.assignmentID
}

// Editor exposes the solution editor.
func (w *Workspace) Editor() *SolutionEditor {
	return w.editor
}

// Attachments exposes the attachment manager.
func (w *Workspace) Attachments() *AttachmentManager {
	return w.attachments
}

// Evaluation exposes the evaluation orchestrator.
func (w *Workspace) Evaluation() *EvaluationOrchestrator {
	return w.evaluation
}

// Load fetches the assignment and the student's submission. Only a failed
// assignment fetch is returned; a failed submission fetch leaves the
// workspace viewable with a load error and mutations refused.
func (w *Workspace) Load(ctx context.Context) error {
	ctx, span := w.tracer.Start(ctx, "workspace.load", trace.WithAttributes(
		attribute.Int64("assignment.id", int64(w.assignmentID)),
	))
	defer span.End()

	assignment, err := w.gateway.GetAssignment(ctx, w.assignmentID)
	if err != nil {
		w.mu.Lock()
		w.loadErr = classroom.Message(err)
		w.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, classroom.Message(err))
		w.logger.Warn().Err(err).Msg("failed to load assignment")
		return err
	}

	w.mu.Lock()
	w.assignment = &assignment
	w.loaded = true
	w.mu.Unlock()

	w.evaluation.clearResult()

	if err := w.Refetch(ctx); err != nil {
		span.RecordError(err)
	}
	return nil
}

// Refetch reloads the submission. A missing submission is a valid state.
// When refetches overlap, only the most recently issued one is applied.
func (w *Workspace) Refetch(ctx context.Context) error {
	w.mu.Lock()
	w.refetches++
	seq := w.refetches
	w.mu.Unlock()

	submission, err := w.gateway.GetMySubmission(ctx, w.assignmentID)

	w.mu.Lock()
	if seq != w.refetches {
		w.mu.Unlock()
		return nil
	}
	switch {
	case err == nil:
		w.submission = &submission
	case classroom.IsNotFound(err):
		w.submission = nil
	default:
		w.loadErr = classroom.Message(err)
		w.mu.Unlock()
		w.logger.Warn().Err(err).Msg("failed to refresh submission")
		return err
	}
	w.loaded = true
	w.known = true
	w.loadErr = ""
	w.state = DeriveSubmissionState(w.submission)
	state := w.state
	w.mu.Unlock()

	publish(w.events, dto.WorkbenchEvent{
		Type:         dto.EventWorkspaceRefreshed,
		AssignmentID: w.assignmentID,
		State:        string(state.Status),
	})
	return nil
}

// Loaded reports whether a load has completed.
func (w *Workspace) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// State returns the current derived submission state.
func (w *Workspace) State() SubmissionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// TurnIn submits the submission for grading. Afterwards the submission is
// locked against further changes.
func (w *Workspace) TurnIn(ctx context.Context) error {
	w.mu.Lock()
	if err := w.modifiableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.submission == nil {
		w.mu.Unlock()
		return ErrNothingToTurnIn
	}
	if w.turningIn {
		w.mu.Unlock()
		return ErrTurnInInProgress
	}
	w.turningIn = true
	w.turnInErr = ""
	w.mu.Unlock()

	err := w.gateway.SubmitSubmission(ctx, w.assignmentID)

	w.mu.Lock()
	w.turningIn = false
	if err != nil {
		w.turnInErr = classroom.Message(err)
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn().Err(err).Msg("turn in failed")
		return err
	}

	w.logger.Info().Msg("submission turned in")
	publish(w.events, dto.WorkbenchEvent{
		Type:         dto.EventSubmissionTurnedIn,
		AssignmentID: w.assignmentID,
	})
	if err := w.Refetch(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("refetch after turn in failed")
	}
	return nil
}

// OpenSolution opens the solution editor.
func (w *Workspace) OpenSolution(ctx context.Context) error {
	if err := w.requireModifiable(); err != nil {
		return err
	}
	if w.evaluation.Evaluating() {
		return ErrEvaluationInProgress
	}
	return w.editor.Open(ctx)
}

// EditSolution replaces the editor buffer.
func (w *Workspace) EditSolution(content string) error {
	if err := w.requireModifiable(); err != nil {
		return err
	}
	return w.editor.Edit(content)
}

// SaveSolution persists the editor buffer.
func (w *Workspace) SaveSolution(ctx context.Context) error {
	if err := w.requireModifiable(); err != nil {
		return err
	}
	if w.evaluation.Evaluating() {
		return ErrEvaluationInProgress
	}
	return w.editor.Save(ctx)
}

// CloseSolution closes the editor, dropping unsaved edits.
func (w *Workspace) CloseSolution() {
	w.editor.Close()
}

// UploadAttachment selects and uploads a file.
func (w *Workspace) UploadAttachment(ctx context.Context, file LocalFile) error {
	if err := w.requireModifiable(); err != nil {
		return err
	}
	if err := w.attachments.Select(file); err != nil {
		return err
	}
	return w.attachments.Upload(ctx)
}

// RetryUpload re-sends the file whose upload last failed.
func (w *Workspace) RetryUpload(ctx context.Context) error {
	if err := w.requireModifiable(); err != nil {
		return err
	}
	return w.attachments.Upload(ctx)
}

// DeleteAttachment deletes a submitted file once confirmed.
func (w *Workspace) DeleteAttachment(ctx context.Context, fileID uint, confirmed bool) error {
	if err := w.requireModifiable(); err != nil {
		return err
	}
	return w.attachments.Delete(ctx, fileID, confirmed)
}

// Evaluate runs the platform evaluation of the current submission.
func (w *Workspace) Evaluate(ctx context.Context, language string) (dto.EvaluationView, error) {
	w.mu.Lock()
	if !w.loaded || w.assignment == nil {
		w.mu.Unlock()
		return dto.EvaluationView{}, ErrWorkspaceNotLoaded
	}
	if !w.known {
		w.mu.Unlock()
		return dto.EvaluationView{}, ErrSubmissionUnknown
	}
	isCode := w.assignment.IsCodeAssignment
	w.mu.Unlock()

	if !isCode {
		return dto.EvaluationView{}, ErrNotCodeAssignment
	}
	return w.evaluation.Trigger(ctx, language)
}

// View renders the whole workspace.
func (w *Workspace) View() dto.WorkspaceView {
	w.mu.Lock()
	view := dto.WorkspaceView{
		State:       w.state.View(),
		LoadError:   w.loadErr,
		TurningIn:   w.turningIn,
		TurnInError: w.turnInErr,
	}
	if !w.known {
		view.State.CanModify = false
	}
	isCode := w.assignment != nil && w.assignment.IsCodeAssignment
	if w.assignment != nil {
		assignment := dto.NewAssignmentView(*w.assignment, w.instructions, w.cfg.Now())
		view.Assignment = &assignment
	}
	submission := w.snapshotLocked()
	if submission != nil {
		converted := dto.NewSubmissionView(*submission, w.feedback)
		view.Submission = &converted
	}
	w.mu.Unlock()

	view.Editor = w.editor.View(submission)
	view.Attachments = w.attachments.View(submission)
	view.Evaluation = w.evaluation.View()
	view.CanEvaluate = isCode && !view.Evaluation.Evaluating && view.Editor.Lifecycle == string(FilePresent)
	view.Evaluation.CanEvaluate = view.CanEvaluate
	return view
}

func (w *Workspace) currentSubmission() *models.Submission {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workspace) snapshotLocked() *models.Submission {
	if w.submission == nil {
		return nil
	}
	clone := *w.submission
	clone.Files = append([]models.SubmittedFile(nil), w.submission.Files...)
	return &clone
}

func (w *Workspace) requireModifiable() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.modifiableLocked()
}

func (w *Workspace) modifiableLocked() error {
	if !w.loaded {
		return ErrWorkspaceNotLoaded
	}
	if !w.known {
		return ErrSubmissionUnknown
	}
	if !w.state.CanModify {
		return ErrSubmissionLocked
	}
	return nil
}
