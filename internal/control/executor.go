package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/config"
)

// Defaults applied when Config fields are zero.
const (
	defaultAttempts   = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// Logger defines the logging interface used by the Executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder receives command outcomes, typically for Prometheus.
type Recorder interface {
	CommandAttempt(kind string)
	CommandResult(uniqueID, kind, result string, attempts int, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) CommandAttempt(string)                                     {}
func (noopRecorder) CommandResult(string, string, string, int, time.Duration) {}

// MultiRecorder fans command outcomes out to several recorders.
func MultiRecorder(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

type multiRecorder []Recorder

func (m multiRecorder) CommandAttempt(kind string) {
	for _, r := range m {
		r.CommandAttempt(kind)
	}
}

func (m multiRecorder) CommandResult(uniqueID, kind, result string, attempts int, d time.Duration) {
	for _, r := range m {
		r.CommandResult(uniqueID, kind, result, attempts, d)
	}
}

// Command results reported to the Recorder.
const (
	ResultOK           = "ok"
	ResultUnsupported  = "unsupported"
	ResultUnresponsive = "unresponsive"
	ResultBusy         = "busy"
	ResultCancelled    = "cancelled"
	ResultRejected     = "rejected"
)

// StateStore is the part of the display registry the Executor writes to.
type StateStore interface {
	UpdateState(uniqueID string, u display.StateUpdate) (display.Change, error)
}

// Config controls retry behaviour.
type Config struct {
	// Attempts is the total number of tries per hardware call.
	Attempts int

	// RetryDelay is multiplied by the attempt number between tries.
	RetryDelay time.Duration

	// Timeout bounds each individual hardware call. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration
}

// ConfigFromAgent derives executor settings from the agent configuration.
func ConfigFromAgent(cfg config.AgentConfig) Config {
	return Config{
		Attempts:   cfg.CommandRetries + 1,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.CommandTimeout,
	}
}

// Executor runs power and brightness commands against displays.
//
// Each display has its own lock so a slow, retrying command only delays
// other work on the same monitor. A successful command writes the new state
// to the store exactly once; failed attempts write nothing.
type Executor struct {
	hw    Hardware
	store StateStore
	cfg   Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	logger   Logger
	recorder Recorder
	now      func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(hw Hardware, store StateStore, cfg Config) *Executor {
	if cfg.Attempts < 1 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Executor{
		hw:       hw,
		store:    store,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
		logger:   noopLogger{},
		recorder: noopRecorder{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// SetRecorder sets the metrics recorder.
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

func (e *Executor) lockFor(uniqueID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	mu, ok := e.locks[uniqueID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[uniqueID] = mu
	}
	return mu
}

// SetPower turns a display on or off.
func (e *Executor) SetPower(ctx context.Context, d display.Display, on bool) (display.Change, error) {
	if !d.Present || d.OutputID == "" {
		return e.reject(d, KindPower, ErrNotPresent)
	}
	if d.PowerUnsupported {
		return e.reject(d, KindPower, ErrUnsupported)
	}

	mu := e.lockFor(d.UniqueID)
	mu.Lock()
	defer mu.Unlock()

	start := e.now()
	attempts, err := e.retry(ctx, d, KindPower, func(ctx context.Context) error {
		return e.hw.SetPower(ctx, d.OutputID, on)
	})
	if err != nil {
		return e.fail(d, KindPower, attempts, start, err)
	}

	state := display.PowerOff
	if on {
		state = display.PowerOn
	}
	return e.succeed(d, KindPower, attempts, start, display.StateUpdate{Power: &state})
}

// SetBrightness writes a brightness value (0-100).
func (e *Executor) SetBrightness(ctx context.Context, d display.Display, value int) (display.Change, error) {
	if value < 0 || value > 100 {
		return e.reject(d, KindBrightness, fmt.Errorf("%w: brightness %d outside 0-100", ErrInvalidValue, value))
	}
	if !d.Present {
		return e.reject(d, KindBrightness, ErrNotPresent)
	}
	if !d.HasBrightness() {
		return e.reject(d, KindBrightness, ErrUnsupported)
	}

	mu := e.lockFor(d.UniqueID)
	mu.Lock()
	defer mu.Unlock()

	start := e.now()
	attempts, err := e.retry(ctx, d, KindBrightness, func(ctx context.Context) error {
		return e.hw.SetBrightness(ctx, d.BusPath, value)
	})
	if err != nil {
		return e.fail(d, KindBrightness, attempts, start, err)
	}
	return e.succeed(d, KindBrightness, attempts, start, display.StateUpdate{Brightness: display.IntPtr(value)})
}

// ReadBrightness reads the current brightness and stores it, waiting for
// any command in progress on the same display.
func (e *Executor) ReadBrightness(ctx context.Context, d display.Display) (display.Change, error) {
	if !d.HasBrightness() {
		return e.reject(d, KindReadBrightness, ErrUnsupported)
	}

	mu := e.lockFor(d.UniqueID)
	mu.Lock()
	defer mu.Unlock()
	return e.readLocked(ctx, d)
}

// TryReadBrightness is ReadBrightness that returns ErrBusy instead of waiting
// when a command holds the display.
func (e *Executor) TryReadBrightness(ctx context.Context, d display.Display) (display.Change, error) {
	if !d.HasBrightness() {
		return e.reject(d, KindReadBrightness, ErrUnsupported)
	}

	mu := e.lockFor(d.UniqueID)
	if !mu.TryLock() {
		e.recorder.CommandResult(d.UniqueID, KindReadBrightness, ResultBusy, 0, 0)
		return display.Change{}, &CommandError{UniqueID: d.UniqueID, Kind: KindReadBrightness, Err: ErrBusy}
	}
	defer mu.Unlock()
	return e.readLocked(ctx, d)
}

func (e *Executor) readLocked(ctx context.Context, d display.Display) (display.Change, error) {
	start := e.now()
	var value int
	attempts, err := e.retry(ctx, d, KindReadBrightness, func(ctx context.Context) error {
		v, err := e.hw.GetBrightness(ctx, d.BusPath)
		if err != nil {
			return err
		}
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: brightness %d out of range", ErrHardware, v)
		}
		value = v
		return nil
	})
	if err != nil {
		return e.fail(d, KindReadBrightness, attempts, start, err)
	}
	return e.succeed(d, KindReadBrightness, attempts, start, display.StateUpdate{Brightness: display.IntPtr(value)})
}

// retry runs fn up to cfg.Attempts times with a linearly increasing delay.
// It returns the number of attempts made. Exhaustion wraps
// ErrHardwareUnresponsive around the last error.
func (e *Executor) retry(ctx context.Context, d display.Display, kind string, fn func(context.Context) error) (int, error) {
	for attempt := 1; ; attempt++ {
		e.recorder.CommandAttempt(kind)

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if e.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		}
		err := fn(callCtx)
		cancel()

		switch {
		case err == nil:
			return attempt, nil
		case errors.Is(err, ErrUnsupported):
			return attempt, err
		case ctx.Err() != nil:
			return attempt, ctx.Err()
		case attempt >= e.cfg.Attempts:
			return attempt, fmt.Errorf("%w: %w", ErrHardwareUnresponsive, err)
		}

		delay := e.cfg.RetryDelay * time.Duration(attempt)
		e.logger.Debug("hardware call failed, retrying",
			"unique_id", d.UniqueID, "kind", kind, "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

func (e *Executor) succeed(d display.Display, kind string, attempts int, start time.Time, u display.StateUpdate) (display.Change, error) {
	responsive := false
	noError := ""
	u.Unresponsive = &responsive
	u.Error = &noError
	u.At = e.now()

	change, err := e.store.UpdateState(d.UniqueID, u)
	elapsed := e.now().Sub(start)
	e.recorder.CommandResult(d.UniqueID, kind, ResultOK, attempts, elapsed)
	if err != nil {
		return change, fmt.Errorf("recording %s result for %s: %w", kind, d.UniqueID, err)
	}
	if attempts > 1 {
		e.logger.Info("command succeeded after retry", "unique_id", d.UniqueID, "kind", kind, "attempts", attempts)
	}
	return change, nil
}

func (e *Executor) fail(d display.Display, kind string, attempts int, start time.Time, err error) (display.Change, error) {
	elapsed := e.now().Sub(start)
	cmdErr := &CommandError{UniqueID: d.UniqueID, Kind: kind, Attempts: attempts, Err: err}
	msg := cmdErr.Error()

	var (
		u      display.StateUpdate
		result string
	)
	switch {
	case errors.Is(err, ErrUnsupported):
		result = ResultUnsupported
		u.Error = &msg
		unsupported := true
		if kind == KindPower {
			u.PowerUnsupported = &unsupported
		} else {
			u.BrightnessUnsupported = &unsupported
		}
		e.logger.Warn("display feature unsupported", "unique_id", d.UniqueID, "kind", kind, "error", err)
	case errors.Is(err, ErrHardwareUnresponsive):
		result = ResultUnresponsive
		unresponsive := true
		u.Unresponsive = &unresponsive
		u.Error = &msg
		e.logger.Warn("display unresponsive", "unique_id", d.UniqueID, "kind", kind, "attempts", attempts, "error", err)
	default:
		// Cancelled: the hardware state is unknown, leave the record alone.
		e.recorder.CommandResult(d.UniqueID, kind, ResultCancelled, attempts, elapsed)
		return display.Change{}, cmdErr
	}

	e.recorder.CommandResult(d.UniqueID, kind, result, attempts, elapsed)
	change, uerr := e.store.UpdateState(d.UniqueID, u)
	if uerr != nil {
		e.logger.Debug("recording failure", "unique_id", d.UniqueID, "error", uerr)
	}
	return change, cmdErr
}

func (e *Executor) reject(d display.Display, kind string, err error) (display.Change, error) {
	e.recorder.CommandResult(d.UniqueID, kind, ResultRejected, 0, 0)
	return display.Change{}, &CommandError{UniqueID: d.UniqueID, Kind: kind, Err: err}
}
