package processor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teranos/metronome/errors"
)

// rangeTimeLayout pins formatting to millisecond precision, the tick size
// of processing windows.
const rangeTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// TimeRange is one closed processing window handed to the engine. Valid
// only when From precedes To.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate rejects ranges whose end does not follow their start.
func (r TimeRange) Validate() error {
	if !r.To.After(r.From) {
		return errors.Wrapf(errors.ErrInvalidTimeRange,
			"range end %s is not after start %s",
			r.To.UTC().Format(rangeTimeLayout), r.From.UTC().Format(rangeTimeLayout))
	}
	return nil
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s]",
		r.From.UTC().Format(rangeTimeLayout), r.To.UTC().Format(rangeTimeLayout))
}

// Parameters is what the engine receives for one execution: the processing
// range plus the processor's opaque configuration.
type Parameters struct {
	Range  TimeRange       `json:"timerange"`
	Config json.RawMessage `json:"config,omitempty"`
}

// WithRange returns a copy of the parameters carrying rng.
func (p Parameters) WithRange(rng TimeRange) Parameters {
	p.Range = rng
	return p
}
