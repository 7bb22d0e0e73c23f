package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/models"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

var (
	// ErrNoFileSelected is returned by Upload when nothing is selected.
	ErrNoFileSelected = errors.New("no file selected for upload")
	// ErrUploadInProgress is returned when an upload is already running.
	ErrUploadInProgress = errors.New("an upload is already in progress")
	// ErrNoSubmission is returned when an operation needs an existing submission.
	ErrNoSubmission = errors.New("no submission exists for this assignment yet")
	// ErrDeleteInProgress is returned when the file is already being deleted.
	ErrDeleteInProgress = errors.New("file is already being deleted")
	// ErrNotAnAttachment is returned when deleting the canonical solution file.
	ErrNotAnAttachment = errors.New("the solution file is managed by the editor")
	// ErrEmptyFile is returned when selecting a file without a name or content.
	ErrEmptyFile = errors.New("file name and content are required")
)

// LocalFile is a file chosen by the student but not yet uploaded.
type LocalFile struct {
	Name        string
	ContentType string
	Content     []byte
}

// AttachmentManager uploads and deletes the auxiliary files of a submission.
type AttachmentManager struct {
	assignmentID  uint
	canonicalName string
	gateway       classroom.Client
	source        submissionSource
	events        EventPublisher
	logger        zerolog.Logger

	mu        sync.Mutex
	selected  *LocalFile
	uploading bool
	uploadErr string
	deleting  map[uint]bool
	deleteErr string
}

func newAttachmentManager(assignmentID uint, gateway classroom.Client, source submissionSource, events EventPublisher, cfg WorkspaceConfig, logger zerolog.Logger) *AttachmentManager {
	return &AttachmentManager{
		assignmentID:  assignmentID,
		canonicalName: cfg.SolutionFileName,
		gateway:       gateway,
		source:        source,
		events:        events,
		logger:        logger.With().Str("component", "attachment_manager").Logger(),
		deleting:      make(map[uint]bool),
	}
}

// Select replaces the pending file. A missing content type is sniffed from
// the content.
func (m *AttachmentManager) Select(file LocalFile) error {
	file.Name = strings.TrimSpace(file.Name)
	if file.Name == "" || len(file.Content) == 0 {
		return ErrEmptyFile
	}
	if strings.TrimSpace(file.ContentType) == "" || file.ContentType == "application/octet-stream" {
		file.ContentType = mimetype.Detect(file.Content).String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = &file
	m.uploadErr = ""
	return nil
}

// Upload sends the selected file. On failure the selection is kept so the
// upload can be retried.
func (m *AttachmentManager) Upload(ctx context.Context) error {
	m.mu.Lock()
	if m.selected == nil {
		m.mu.Unlock()
		return ErrNoFileSelected
	}
	if m.uploading {
		m.mu.Unlock()
		return ErrUploadInProgress
	}
	m.uploading = true
	m.uploadErr = ""
	file := *m.selected
	m.mu.Unlock()

	uploaded, err := m.gateway.UploadFile(ctx, m.assignmentID, classroom.FileUpload{
		Name:        file.Name,
		ContentType: file.ContentType,
		Content:     file.Content,
	})

	m.mu.Lock()
	m.uploading = false
	if err != nil {
		m.uploadErr = classroom.Message(err)
		m.mu.Unlock()
		m.logger.Warn().Err(err).Str("file_name", file.Name).Msg("attachment upload failed")
		return err
	}
	m.selected = nil
	m.mu.Unlock()

	publish(m.events, dto.WorkbenchEvent{
		Type:         dto.EventAttachmentUploaded,
		AssignmentID: m.assignmentID,
		Subject:      uploaded.FileName,
	})
	if err := m.source.Refetch(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("refetch after upload failed")
	}
	return nil
}

// Delete removes a submitted file after explicit confirmation.
func (m *AttachmentManager) Delete(ctx context.Context, fileID uint, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	submission := m.source.currentSubmission()
	if submission == nil {
		return ErrNoSubmission
	}
	if file, found := submission.FindFile(m.canonicalName); found && file.ID == fileID {
		return ErrNotAnAttachment
	}

	m.mu.Lock()
	if m.deleting[fileID] {
		m.mu.Unlock()
		return ErrDeleteInProgress
	}
	m.deleting[fileID] = true
	m.deleteErr = ""
	m.mu.Unlock()

	err := m.gateway.DeleteFile(ctx, submission.ID, fileID)

	m.mu.Lock()
	delete(m.deleting, fileID)
	if err != nil {
		m.deleteErr = classroom.Message(err)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Uint("file_id", fileID).Msg("attachment delete failed")
		return err
	}

	publish(m.events, dto.WorkbenchEvent{
		Type:         dto.EventAttachmentDeleted,
		AssignmentID: m.assignmentID,
	})
	if err := m.source.Refetch(ctx); err != nil {
		m.logger.Warn().Err(err).Uint("file_id", fileID).Msg("refetch after delete failed")
	}
	return nil
}

// IsDeleting reports whether fileID has a delete in flight.
func (m *AttachmentManager) IsDeleting(fileID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleting[fileID]
}

// View lists the non-canonical files of a submission snapshot.
func (m *AttachmentManager) View(submission *models.Submission) dto.AttachmentView {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := dto.AttachmentView{
		Files:       []dto.SubmittedFileView{},
		Uploading:   m.uploading,
		UploadError: m.uploadErr,
		DeleteError: m.deleteErr,
	}
	if m.selected != nil {
		view.Selected = m.selected.Name
	}
	if submission == nil {
		return view
	}

	canonical, hasCanonical := submission.FindFile(m.canonicalName)
	for _, file := range submission.Files {
		if hasCanonical && file.ID == canonical.ID {
			continue
		}
		view.Files = append(view.Files, dto.NewSubmittedFileView(file, m.deleting[file.ID]))
	}
	return view
}
