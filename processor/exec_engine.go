package processor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/logger"
)

// ExecEngine runs a local command per processing window. The execution is
// handed over twice: key facts in METRONOME_* environment variables for
// shell one-liners, the full payload as JSON on stdin for real programs.
// A zero exit code means the window was processed.
type ExecEngine struct {
	command string
	argv    []string
	timeout time.Duration
	clock   clock.Clock
	logger  *zap.SugaredLogger
}

// NewExecEngine creates an engine running command, which is split with
// shell quoting rules at construction so malformed commands fail the daemon
// start instead of the first trigger.
func NewExecEngine(command string, timeout time.Duration, clk clock.Clock, log *zap.SugaredLogger) (*ExecEngine, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfiguration,
			errors.Wrapf(err, "failed to parse exec engine command %q", command).Error())
	}
	if len(argv) == 0 {
		return nil, errors.NewConfigurationError("exec engine requires a command")
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ExecEngine{
		command: command,
		argv:    argv,
		timeout: timeout,
		clock:   clk,
		logger:  log,
	}, nil
}

// Execute runs the command for one window. Non-zero exits fail the
// execution with the captured stderr.
func (e *ExecEngine) Execute(ctx context.Context, processorID string, params Parameters) error {
	payload, err := encodePayload(processorID, params, e.clock.Now())
	if err != nil {
		return err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"METRONOME_PROCESSOR_ID="+processorID,
		"METRONOME_RANGE_FROM="+params.Range.From.UTC().Format(rangeTimeLayout),
		"METRONOME_RANGE_TO="+params.Range.To.UTC().Format(rangeTimeLayout),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := e.clock.Now()
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = err.Error()
		}
		return errors.Wrapf(errors.ErrEngineExecution,
			"command %q failed for processor %s: %s", e.command, processorID, detail)
	}

	fields := append(logger.FieldsFromContext(ctx),
		logger.FieldProcessorID, processorID,
		logger.FieldRangeFrom, params.Range.From,
		logger.FieldRangeTo, params.Range.To,
		logger.FieldDurationMS, e.clock.Now().Sub(start).Milliseconds(),
	)
	e.logger.Debugw("Command processed window", fields...)
	return nil
}
