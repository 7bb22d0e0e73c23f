package classroom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-workbench/internal/models"
)

const evaluationResultSchema = `{
  "type": "object",
  "required": ["status", "compilation_success"],
  "properties": {
    "submission_id": {"type": "integer", "minimum": 0},
    "language": {"type": "string"},
    "status": {"type": "string", "minLength": 1},
    "compilation_success": {"type": "boolean"},
    "compiler_output": {"type": ["string", "null"]},
    "points_obtained": {"type": ["number", "null"]},
    "points_possible": {"type": ["number", "null"]},
    "test_case_results": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["status"],
        "properties": {
          "test_case_id": {"type": "integer", "minimum": 0},
          "test_case_name": {"type": "string"},
          "status": {"type": "string", "minLength": 1},
          "stdout": {"type": ["string", "null"]},
          "stderr": {"type": ["string", "null"]},
          "message": {"type": ["string", "null"]},
          "duration_ms": {"type": ["integer", "null"], "minimum": 0}
        }
      }
    }
  }
}`

var evaluationSchema = jsonschema.MustCompileString("evaluation_result.schema.json", evaluationResultSchema)

// TriggerEvaluation runs the platform's evaluation of a submission's solution
// and returns the structured verdict.
func (c *HTTPClient) TriggerEvaluation(ctx context.Context, submissionID uint, language string) (models.EvaluationResult, error) {
	query := url.Values{}
	if language = strings.TrimSpace(language); language != "" {
		query.Set("language", language)
	}

	body, err := c.do(ctx, request{
		operation: "trigger_evaluation",
		method:    http.MethodPost,
		path:      idPath("/submissions/%d/evaluation:trigger", submissionID),
		query:     query,
	})
	if err != nil {
		return models.EvaluationResult{}, err
	}

	return decodeEvaluation(body)
}

func decodeEvaluation(body []byte) (models.EvaluationResult, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return models.EvaluationResult{}, fmt.Errorf("%w: evaluation result: %v", ErrInvalidPayload, err)
	}
	if err := evaluationSchema.Validate(raw); err != nil {
		return models.EvaluationResult{}, fmt.Errorf("%w: evaluation result: %v", ErrInvalidPayload, err)
	}

	var result models.EvaluationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return models.EvaluationResult{}, fmt.Errorf("%w: evaluation result: %v", ErrInvalidPayload, err)
	}
	if result.TestCaseResults == nil {
		result.TestCaseResults = []models.TestCaseResult{}
	}
	return result, nil
}
