package classroom

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/noah-isme/gema-workbench/internal/models"
)

// TestCasePart selects one of the two text blobs of a test case.
type TestCasePart string

const (
	TestCaseInput  TestCasePart = "input"
	TestCaseOutput TestCasePart = "output"
)

// Valid reports whether p names a known blob.
func (p TestCasePart) Valid() bool {
	return p == TestCaseInput || p == TestCaseOutput
}

// TestCaseCreate is the payload for creating a test case. The platform derives
// the input and output file names from Name.
type TestCaseCreate struct {
	Name               string
	Points             float64
	MaxExecutionTimeMs int
	MaxRAMMB           int
	Visible            bool
}

// ListTestCases returns the test cases of an assignment.
func (c *HTTPClient) ListTestCases(ctx context.Context, assignmentID uint) ([]models.TestCase, error) {
	testCases := make([]models.TestCase, 0)
	err := c.doJSON(ctx, request{
		operation: "list_test_cases",
		method:    http.MethodGet,
		path:      idPath("/assignments/%d/testcases", assignmentID),
	}, &testCases)
	if err != nil {
		return nil, err
	}
	return testCases, nil
}

// CreateTestCase registers a new test case with empty input and output.
func (c *HTTPClient) CreateTestCase(ctx context.Context, assignmentID uint, payload TestCaseCreate) (models.TestCase, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := []struct{ key, value string }{
		{"name", payload.Name},
		{"points", strconv.FormatFloat(payload.Points, 'f', -1, 64)},
		{"max_execution_time_ms", strconv.Itoa(payload.MaxExecutionTimeMs)},
		{"max_ram_mb", strconv.Itoa(payload.MaxRAMMB)},
		{"visible", strconv.FormatBool(payload.Visible)},
	}
	for _, field := range fields {
		if err := writer.WriteField(field.key, field.value); err != nil {
			return models.TestCase{}, fmt.Errorf("build test case form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return models.TestCase{}, fmt.Errorf("build test case form: %w", err)
	}

	var testCase models.TestCase
	err := c.doJSON(ctx, request{
		operation:   "create_test_case",
		method:      http.MethodPost,
		path:        idPath("/assignments/%d/testcases", assignmentID),
		body:        body.Bytes(),
		contentType: writer.FormDataContentType(),
	}, &testCase)
	return testCase, err
}

// DeleteTestCase removes a test case together with its input and output.
func (c *HTTPClient) DeleteTestCase(ctx context.Context, assignmentID, testCaseID uint) error {
	_, err := c.do(ctx, request{
		operation: "delete_test_case",
		method:    http.MethodDelete,
		path:      idPath("/assignments/%d/testcases/%d", assignmentID, testCaseID),
	})
	return err
}

// GetTestCaseContent returns the input or output text of a test case.
func (c *HTTPClient) GetTestCaseContent(ctx context.Context, testCaseID uint, part TestCasePart) (string, error) {
	if !part.Valid() {
		return "", fmt.Errorf("unknown test case part %q", part)
	}
	body, err := c.do(ctx, request{
		operation: "get_test_case_" + string(part),
		method:    http.MethodGet,
		path:      fmt.Sprintf("/testcases/%d/%s/content", testCaseID, part),
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// SaveTestCaseContent replaces the input or output text of a test case.
func (c *HTTPClient) SaveTestCaseContent(ctx context.Context, testCaseID uint, part TestCasePart, content string) error {
	if !part.Valid() {
		return fmt.Errorf("unknown test case part %q", part)
	}
	_, err := c.do(ctx, request{
		operation:   "save_test_case_" + string(part),
		method:      http.MethodPut,
		path:        fmt.Sprintf("/testcases/%d/%s/content", testCaseID, part),
		body:        []byte(content),
		contentType: textContentType,
	})
	return err
}
