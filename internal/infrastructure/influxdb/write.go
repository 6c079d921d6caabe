package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementDisplayState = "display_state"
	measurementCommand      = "display_command"
)

// DisplayState is one observation of a display's live state.
type DisplayState struct {
	UniqueID   string
	OutputID   string
	Power      string // "on", "off" or "unknown"
	Brightness *int
	Available  bool
	Resolution string
	Time       time.Time
}

// CommandRecord describes one executed hardware command.
type CommandRecord struct {
	UniqueID string
	Kind     string // "power" or "brightness"
	Result   string // "ok", "unresponsive", "unsupported", "error"
	Attempts int
	Duration time.Duration
	Time     time.Time
}

// WriteDisplayState records a display state observation.
//
// Tags are the display identity (low cardinality); fields carry the values.
// Brightness is omitted when unknown so queries do not read a false zero.
func (c *Client) WriteDisplayState(s DisplayState) {
	if !c.IsConnected() {
		return
	}

	power := 0
	if s.Power == "on" {
		power = 1
	}

	fields := map[string]interface{}{
		"power":     power,
		"available": s.Available,
	}
	if s.Brightness != nil {
		fields["brightness"] = *s.Brightness
	}
	if s.Resolution != "" {
		fields["resolution"] = s.Resolution
	}

	point := write.NewPoint(
		measurementDisplayState,
		map[string]string{
			"unique_id": s.UniqueID,
			"output":    s.OutputID,
		},
		fields,
		timestampOrNow(s.Time),
	)
	c.writeAPI.WritePoint(point)
}

// WriteCommand records the outcome of a hardware command.
func (c *Client) WriteCommand(r CommandRecord) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementCommand,
		map[string]string{
			"unique_id": r.UniqueID,
			"kind":      r.Kind,
			"result":    r.Result,
		},
		map[string]interface{}{
			"attempts":    r.Attempts,
			"duration_ms": r.Duration.Milliseconds(),
		},
		timestampOrNow(r.Time),
	)
	c.writeAPI.WritePoint(point)
}

// CommandAttempt satisfies the executor's recorder interface. Individual
// attempts are not stored; CommandResult carries the count.
func (c *Client) CommandAttempt(string) {}

// CommandResult records a finished command as a display_command point.
func (c *Client) CommandResult(uniqueID, kind, result string, attempts int, d time.Duration) {
	c.WriteCommand(CommandRecord{
		UniqueID: uniqueID,
		Kind:     kind,
		Result:   result,
		Attempts: attempts,
		Duration: d,
	})
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
