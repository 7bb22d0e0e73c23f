package classroom

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/noah-isme/gema-workbench/internal/models"
)

const textContentType = "text/plain; charset=utf-8"

// FileUpload is a local file to attach to a submission.
type FileUpload struct {
	Name        string
	ContentType string
	Content     []byte
}

// GetAssignment fetches a single assignment.
func (c *HTTPClient) GetAssignment(ctx context.Context, assignmentID uint) (models.Assignment, error) {
	var assignment models.Assignment
	err := c.doJSON(ctx, request{
		operation: "get_assignment",
		method:    http.MethodGet,
		path:      idPath("/assignments/%d", assignmentID),
	}, &assignment)
	return assignment, err
}

// GetMySubmission fetches the caller's submission for an assignment. A
// submission that does not exist yet yields an error matching ErrNotFound.
func (c *HTTPClient) GetMySubmission(ctx context.Context, assignmentID uint) (models.Submission, error) {
	var submission models.Submission
	err := c.doJSON(ctx, request{
		operation: "get_my_submission",
		method:    http.MethodGet,
		path:      idPath("/assignments/%d/submissions/me", assignmentID),
	}, &submission)
	return submission, err
}

// UploadFile attaches a file to the caller's submission, creating the
// submission if needed.
func (c *HTTPClient) UploadFile(ctx context.Context, assignmentID uint, upload FileUpload) (models.SubmittedFile, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(upload.Name)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return models.SubmittedFile{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(upload.Content); err != nil {
		return models.SubmittedFile{}, fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return models.SubmittedFile{}, fmt.Errorf("build upload: %w", err)
	}

	var file models.SubmittedFile
	err = c.doJSON(ctx, request{
		operation:   "upload_file",
		method:      http.MethodPost,
		path:        idPath("/assignments/%d/files", assignmentID),
		body:        body.Bytes(),
		contentType: writer.FormDataContentType(),
	}, &file)
	return file, err
}

// CreateVirtualFile creates an empty named file in the caller's submission.
func (c *HTTPClient) CreateVirtualFile(ctx context.Context, assignmentID uint, name string) (models.SubmittedFile, error) {
	payload, err := jsonBody(map[string]string{"name": name})
	if err != nil {
		return models.SubmittedFile{}, err
	}

	var file models.SubmittedFile
	err = c.doJSON(ctx, request{
		operation:   "create_virtual_file",
		method:      http.MethodPost,
		path:        idPath("/assignments/%d/files/virtual", assignmentID),
		body:        payload,
		contentType: "application/json",
	}, &file)
	return file, err
}

// GetFileContent returns the text content of a submitted file.
func (c *HTTPClient) GetFileContent(ctx context.Context, submissionID, fileID uint) (string, error) {
	body, err := c.do(ctx, request{
		operation: "get_file_content",
		method:    http.MethodGet,
		path:      idPath("/submissions/%d/files/%d/content", submissionID, fileID),
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// SaveFileContent replaces the text content of a submitted file.
func (c *HTTPClient) SaveFileContent(ctx context.Context, submissionID, fileID uint, content string) error {
	_, err := c.do(ctx, request{
		operation:   "save_file_content",
		method:      http.MethodPut,
		path:        idPath("/submissions/%d/files/%d/content", submissionID, fileID),
		body:        []byte(content),
		contentType: textContentType,
	})
	return err
}

// DeleteFile removes a file from a submission.
func (c *HTTPClient) DeleteFile(ctx context.Context, submissionID, fileID uint) error {
	_, err := c.do(ctx, request{
		operation: "delete_file",
		method:    http.MethodDelete,
		path:      idPath("/submissions/%d/files/%d", submissionID, fileID),
	})
	return err
}

// SubmitSubmission turns the caller's submission in. The platform records the
// submission time and decides lateness.
func (c *HTTPClient) SubmitSubmission(ctx context.Context, assignmentID uint) error {
	_, err := c.do(ctx, request{
		operation: "submit_submission",
		method:    http.MethodPost,
		path:      idPath("/assignments/%d/submission:submit", assignmentID),
	})
	return err
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
