package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/observability"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

var (
	// ErrEvaluationNoSubmission is returned before the student has started a submission.
	ErrEvaluationNoSubmission = errors.New("start your solution before running an evaluation")
	// ErrEvaluationNoSolution is returned when the submission lacks the solution file.
	ErrEvaluationNoSolution = errors.New("the solution file has not been created yet")
)

// EvaluationOrchestrator runs the platform evaluation for the current
// submission. Only one run is in flight at a time.
type EvaluationOrchestrator struct {
	assignmentID    uint
	fileName        string
	defaultLanguage string
	gateway         classroom.Client
	source          submissionSource
	events          EventPublisher
	logger          zerolog.Logger
	tracer          trace.Tracer

	mu         sync.Mutex
	evaluating bool
	errMessage string
	result     *dto.EvaluationView
}

func newEvaluationOrchestrator(assignmentID uint, gateway classroom.Client, source submissionSource, events EventPublisher, cfg WorkspaceConfig, logger zerolog.Logger) *EvaluationOrchestrator {
	return &EvaluationOrchestrator{
		assignmentID:    assignmentID,
		fileName:        cfg.SolutionFileName,
		defaultLanguage: cfg.DefaultLanguage,
		gateway:         gateway,
		source:          source,
		events:          events,
		logger:          logger.With().Str("component", "evaluation_orchestrator").Logger(),
		tracer:          otel.Tracer("github.com/noah-isme/gema-workbench/internal/service/evaluation"),
	}
}

// Evaluating reports whether a run is in flight.
func (o *EvaluationOrchestrator) Evaluating() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.evaluating
}

// Trigger checks the local preconditions and then runs the evaluation. A
// failed precondition makes no platform call.
func (o *EvaluationOrchestrator) Trigger(ctx context.Context, language string) (dto.EvaluationView, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = o.defaultLanguage
	}

	submission := o.source.currentSubmission()
	if submission == nil {
		o.fail(ErrEvaluationNoSubmission.Error())
		return dto.EvaluationView{}, ErrEvaluationNoSubmission
	}
	if _, found := submission.FindFile(o.fileName); !found {
		o.fail(ErrEvaluationNoSolution.Error())
		return dto.EvaluationView{}, ErrEvaluationNoSolution
	}

	o.mu.Lock()
	if o.evaluating {
		o.mu.Unlock()
		return dto.EvaluationView{}, ErrEvaluationInProgress
	}
	o.evaluating = true
	o.errMessage = ""
	o.mu.Unlock()

	publish(o.events, dto.WorkbenchEvent{
		Type:         dto.EventEvaluationStarted,
		AssignmentID: o.assignmentID,
		Subject:      language,
	})

	ctx, span := o.tracer.Start(ctx, "evaluation.trigger", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submission.ID)),
		attribute.String("evaluation.language", language),
	))
	defer span.End()

	result, err := o.gateway.TriggerEvaluation(ctx, submission.ID, language)

	o.mu.Lock()
	o.evaluating = false
	if err != nil {
		o.errMessage = classroom.Message(err)
		o.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, classroom.Message(err))
		o.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("evaluation failed")
		publish(o.events, dto.WorkbenchEvent{
			Type:         dto.EventEvaluationFinished,
			AssignmentID: o.assignmentID,
			State:        dto.ToneFail,
			Message:      classroom.Message(err),
		})
		return dto.EvaluationView{}, err
	}

	view := dto.NewEvaluationView(result)
	o.result = &view
	o.mu.Unlock()

	span.SetAttributes(attribute.String("evaluation.status", view.Status))
	observability.Evaluations().WithLabelValues(view.Tone).Inc()
	o.logger.Info().
		Uint("submission_id", submission.ID).
		Str("status", view.Status).
		Int("passed", view.Passed).
		Int("total", view.Total).
		Msg("evaluation completed")
	publish(o.events, dto.WorkbenchEvent{
		Type:         dto.EventEvaluationFinished,
		AssignmentID: o.assignmentID,
		State:        view.Tone,
		Message:      view.Status,
	})
	return view, nil
}

// View renders the evaluation panel.
func (o *EvaluationOrchestrator) View() dto.EvaluationPanelView {
	o.mu.Lock()
	defer o.mu.Unlock()

	view := dto.EvaluationPanelView{Evaluating: o.evaluating, Error: o.errMessage}
	if o.result != nil {
		result := *o.result
		view.Result = &result
	}
	return view
}

// clearResult drops the last result when the workspace is reloaded.
func (o *EvaluationOrchestrator) clearResult() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result = nil
	o.errMessage = ""
}

func (o *EvaluationOrchestrator) fail(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errMessage = message
}
