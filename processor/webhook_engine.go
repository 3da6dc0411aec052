package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/logger"
)

// maxResponseDetail caps how much of a webhook response body ends up in an
// error message (and so in the trigger's lastError).
const maxResponseDetail = 512

// WebhookEngine dispatches each processing window as an HTTP POST. The
// receiver owns the actual event processing; this side only cares whether
// the window was accepted.
type WebhookEngine struct {
	url        string
	httpClient *http.Client
	clock      clock.Clock
	logger     *zap.SugaredLogger
}

// NewWebhookEngine creates an engine POSTing to url. A timeout of zero
// means no client timeout; per-call deadlines still apply through ctx.
func NewWebhookEngine(url string, timeout time.Duration, clk clock.Clock, log *zap.SugaredLogger) (*WebhookEngine, error) {
	if url == "" {
		return nil, errors.NewConfigurationError("webhook engine requires a URL")
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &WebhookEngine{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clk,
		logger:     log,
	}, nil
}

// webhookResponse is the optional body a receiver may answer with. A 2xx
// status with no parseable body counts as success.
type webhookResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// Execute POSTs the window and interprets the answer. Non-2xx statuses and
// explicit success=false bodies both fail the execution.
func (e *WebhookEngine) Execute(ctx context.Context, processorID string, params Parameters) error {
	body, err := encodePayload(processorID, params, e.clock.Now())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "failed to build webhook request for processor %s", processorID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrEngineExecution,
			errors.Wrapf(err, "webhook call for processor %s", processorID).Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseDetail+1))
	if err != nil {
		return errors.Wrap(errors.ErrEngineExecution,
			errors.Wrapf(err, "failed to read webhook response for processor %s", processorID).Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(errors.ErrEngineExecution,
			"webhook returned status %d for processor %s: %s",
			resp.StatusCode, processorID, responseDetail(respBody))
	}

	var answer webhookResponse
	if err := json.Unmarshal(respBody, &answer); err == nil {
		if answer.Success != nil && !*answer.Success {
			detail := answer.Error
			if detail == "" {
				detail = responseDetail(respBody)
			}
			return errors.Wrapf(errors.ErrEngineExecution,
				"webhook reported failure for processor %s: %s", processorID, detail)
		}
	}

	fields := append(logger.FieldsFromContext(ctx),
		logger.FieldProcessorID, processorID,
		logger.FieldRangeFrom, params.Range.From,
		logger.FieldRangeTo, params.Range.To,
		logger.FieldStatus, resp.StatusCode,
	)
	e.logger.Debugw("Webhook accepted processing window", fields...)
	return nil
}

func responseDetail(body []byte) string {
	if len(body) == 0 {
		return "(empty body)"
	}
	if len(body) > maxResponseDetail {
		body = body[:maxResponseDetail]
	}
	return string(body)
}
