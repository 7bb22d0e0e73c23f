package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

// FileLifecycle is the server-side existence of the canonical solution file.
type FileLifecycle string

// File lifecycle values.
const (
	FileAbsent        FileLifecycle = "absent"
	FileMaterializing FileLifecycle = "materializing"
	FilePresent       FileLifecycle = "present"
)

var (
	// ErrMaterializing is returned while the solution file is being created.
	ErrMaterializing = errors.New("solution file is being created")
	// ErrEditorOpening is returned when an open is already in progress.
	ErrEditorOpening = errors.New("solution editor is already opening")
	// ErrEditorNotOpen is returned by edit and save on a closed editor.
	ErrEditorNotOpen = errors.New("solution editor is not open")
	// ErrEditorClosed is returned when the editor was closed before an open finished.
	ErrEditorClosed = errors.New("solution editor was closed")
)

// submissionSource is the workspace as seen by its sub-components.
type submissionSource interface {
	currentSubmission() *models.Submission
	Refetch(ctx context.Context) error
}

// SolutionEditor edits the canonical solution file of a submission, creating
// it on first open.
type SolutionEditor struct {
	assignmentID uint
	fileName     string
	gateway      classroom.Client
	source       submissionSource
	events       EventPublisher
	logger       zerolog.Logger
	save         *SaveTracker

	mu            sync.Mutex
	open          bool
	opening       bool
	materializing bool
	generation    uint64
	submissionID  uint
	fileID        uint
	buffer        string
	errMessage    string
}

func newSolutionEditor(assignmentID uint, gateway classroom.Client, source submissionSource, events EventPublisher, cfg WorkspaceConfig, logger zerolog.Logger) *SolutionEditor {
	editor := &SolutionEditor{
		assignmentID: assignmentID,
		fileName:     cfg.SolutionFileName,
		gateway:      gateway,
		source:       source,
		events:       events,
		logger:       logger.With().Str("component", "solution_editor").Logger(),
	}
	editor.save = NewSaveTracker("solution", cfg.SaveFeedbackDelay, cfg.AfterFunc, func(state SaveState, message string) {
		publish(events, dto.WorkbenchEvent{
			Type:         dto.EventSaveState,
			AssignmentID: assignmentID,
			Subject:      editor.fileName,
			State:        string(state),
			Message:      message,
		})
	})
	return editor
}

// Open loads the canonical file into the buffer. When the submission has no
// such file it is created empty first; in that case no content is fetched.
func (e *SolutionEditor) Open(ctx context.Context) error {
	e.mu.Lock()
	if e.materializing {
		e.mu.Unlock()
		return ErrMaterializing
	}
	if e.opening {
		e.mu.Unlock()
		return ErrEditorOpening
	}
	e.opening = true
	e.errMessage = ""
	generation := e.generation
	e.mu.Unlock()

	submission := e.source.currentSubmission()
	if submission != nil {
		if file, found := submission.FindFile(e.fileName); found {
			return e.openExisting(ctx, generation, submission.ID, file.ID)
		}
	}
	return e.materialize(ctx, generation, submission)
}

func (e *SolutionEditor) openExisting(ctx context.Context, generation uint64, submissionID, fileID uint) error {
	content, err := e.gateway.GetFileContent(ctx, submissionID, fileID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if generation != e.generation {
		return ErrEditorClosed
	}
	e.opening = false
	if err != nil {
		e.errMessage = classroom.Message(err)
		return err
	}

	e.open = true
	e.submissionID = submissionID
	e.fileID = fileID
	e.buffer = content
	return nil
}

func (e *SolutionEditor) materialize(ctx context.Context, generation uint64, before *models.Submission) error {
	e.mu.Lock()
	e.materializing = true
	e.mu.Unlock()

	file, err := e.gateway.CreateVirtualFile(ctx, e.assignmentID, e.fileName)
	if err != nil {
		// a conflict means the file exists upstream; the refetch lets the next open find it
		if refetchErr := e.source.Refetch(ctx); refetchErr != nil {
			e.logger.Warn().Err(refetchErr).Msg("refetch after failed materialization")
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		e.materializing = false
		if generation == e.generation {
			e.opening = false
			e.errMessage = classroom.Message(err)
		}
		return err
	}

	refetchErr := e.source.Refetch(ctx)
	submissionID := uint(0)
	if after := e.source.currentSubmission(); after != nil {
		submissionID = after.ID
	} else if before != nil {
		submissionID = before.ID
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.materializing = false

	if generation != e.generation {
		return ErrEditorClosed
	}
	e.opening = false
	if submissionID == 0 {
		if refetchErr == nil {
			refetchErr = errors.New("submission missing after creating the solution file")
		}
		e.errMessage = classroom.Message(refetchErr)
		return refetchErr
	}

	e.logger.Info().Uint("assignment_id", e.assignmentID).Uint("file_id", file.ID).Msg("solution file created")
	e.open = true
	e.submissionID = submissionID
	e.fileID = file.ID
	e.buffer = ""
	return nil
}

// Edit replaces the buffer.
func (e *SolutionEditor) Edit(content string) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrEditorNotOpen
	}
	e.buffer = content
	e.mu.Unlock()

	e.save.Touch()
	return nil
}

// Save writes the buffer to the platform. Overlapping saves are allowed; only
// the outcome of the latest one is reported.
func (e *SolutionEditor) Save(ctx context.Context) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrEditorNotOpen
	}
	submissionID, fileID, content := e.submissionID, e.fileID, e.buffer
	e.mu.Unlock()

	seq := e.save.Begin()
	err := e.gateway.SaveFileContent(ctx, submissionID, fileID, content)
	e.save.Finish(seq, err)
	if err != nil {
		return err
	}

	if err := e.source.Refetch(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("refetch after save failed")
	}
	return nil
}

// Close discards the buffer and any unsaved edits.
func (e *SolutionEditor) Close() {
	e.mu.Lock()
	e.generation++
	e.open = false
	e.opening = false
	e.submissionID = 0
	e.fileID = 0
	e.buffer = ""
	e.errMessage = ""
	e.mu.Unlock()

	e.save.Reset()
}

// Lifecycle reports the solution file's lifecycle against a submission snapshot.
func (e *SolutionEditor) Lifecycle(submission *models.Submission) FileLifecycle {
	e.mu.Lock()
	materializing := e.materializing
	e.mu.Unlock()

	if materializing {
		return FileMaterializing
	}
	if submission != nil {
		if _, found := submission.FindFile(e.fileName); found {
			return FilePresent
		}
	}
	return FileAbsent
}

// View renders the editor against a submission snapshot.
func (e *SolutionEditor) View(submission *models.Submission) dto.EditorView {
	lifecycle := e.Lifecycle(submission)
	state, saveMessage := e.save.State()

	e.mu.Lock()
	defer e.mu.Unlock()

	action := "Edit solution"
	if lifecycle != FilePresent {
		action = "Start solution"
	}

	return dto.EditorView{
		FileName:   e.fileName,
		Lifecycle:  string(lifecycle),
		Open:       e.open,
		Opening:    e.opening,
		FileID:     e.fileID,
		Buffer:     e.buffer,
		SaveState:  string(state),
		SaveError:  saveMessage,
		Error:      e.errMessage,
		ActionText: action,
	}
}
