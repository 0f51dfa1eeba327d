// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler fails or throws Zeebe jobs from a StandardError.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// retriesLeft decides what happens to a failed job. A positive result fails the
// job with that many retries; zero means throw a BPMN error instead.
func retriesLeft(bpmnErr *BPMNError, jobRetries int32) int {
	if bpmnErr.Retries == 0 || jobRetries <= 1 {
		return 0
	}
	return min(int(jobRetries)-1, bpmnErr.Retries)
}

// HandleJobError retries technical failures while the job has retries left and
// throws a BPMN error for everything else.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := As(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	remaining := retriesLeft(bpmnErr, job.Retries)

	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":          job.Key,
		"jobType":         job.Type,
		"errorCode":       string(stdErr.Code),
		"errorCategory":   GetErrorCategory(stdErr.Code),
		"details":         stdErr.Details,
		"retriesLeft":     remaining,
		"processInstance": job.ProcessInstanceKey,
	})

	vars, _ := json.Marshal(bpmnErr.ToErrorVariables())

	if remaining > 0 {
		cmd := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(int32(remaining)).
			ErrorMessage(bpmnErr.Message)
		if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
		_, _ = cmd.Send(ctx)
		return
	}

	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)
	if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
		_, _ = withVars.Send(ctx)
		return
	}
	_, _ = cmd.Send(ctx)
}
