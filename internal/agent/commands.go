package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/mqtt"
)

// command is one parsed inbound Home Assistant command.
type command struct {
	id       string
	uniqueID string
	kind     string // control.KindPower or control.KindBrightness
	on       bool
	value    int
	received time.Time
}

// parseCommand validates the entity and payload of a command topic.
func parseCommand(component, entity string, payload []byte) (command, error) {
	text := strings.TrimSpace(string(payload))

	switch {
	case component == mqtt.ComponentSwitch && entity == mqtt.EntityPower:
		switch strings.ToUpper(text) {
		case payloadOn:
			return command{kind: control.KindPower, on: true}, nil
		case payloadOff:
			return command{kind: control.KindPower, on: false}, nil
		default:
			return command{}, fmt.Errorf("%w: power payload %q", ErrInvalidCommand, text)
		}

	case component == mqtt.ComponentNumber && entity == mqtt.EntityBrightness:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return command{}, fmt.Errorf("%w: brightness payload %q", ErrInvalidCommand, text)
		}
		if v < brightnessMin || v > brightnessMax {
			return command{}, fmt.Errorf("%w: brightness %v outside %d-%d", ErrInvalidCommand, v, brightnessMin, brightnessMax)
		}
		return command{kind: control.KindBrightness, value: int(math.Round(v))}, nil

	default:
		return command{}, fmt.Errorf("%w: unknown entity %s/%s", ErrInvalidCommand, component, entity)
	}
}

// handleMessage is the MQTT handler for command topics. Rejections are
// logged here; returning nil keeps the transport from logging them twice.
func (a *Agent) handleMessage(topic string, payload []byte) error {
	if err := a.dispatch(topic, payload); err != nil {
		a.logger.Warn("command rejected", "topic", topic, "payload", string(payload), "error", err)
		a.recorder.CommandRejected()
	}
	return nil
}

// dispatch parses a command and queues it for the display's worker.
func (a *Agent) dispatch(topic string, payload []byte) error {
	component, uid, entity, ok := a.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidCommand, topic)
	}

	cmd, err := parseCommand(component, entity, payload)
	if err != nil {
		return err
	}

	if _, err := a.registry.Get(uid); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	switch a.State() {
	case StateConnected:
	case StateShuttingDown:
		return ErrShuttingDown
	default:
		return ErrNotConnected
	}

	cmd.id = uuid.NewString()
	cmd.uniqueID = uid
	cmd.received = a.now()
	return a.enqueue(cmd)
}

// enqueue hands cmd to the display's worker, starting it on first use.
func (a *Agent) enqueue(cmd command) error {
	a.queuesMu.Lock()
	defer a.queuesMu.Unlock()

	if a.closing {
		return ErrShuttingDown
	}

	q, ok := a.queues[cmd.uniqueID]
	if !ok {
		q = make(chan command, a.queueSize)
		a.queues[cmd.uniqueID] = q
		a.workers.Add(1)
		go a.worker(q)
	}

	select {
	case q <- cmd:
		a.logger.Debug("command queued",
			"command_id", cmd.id, "unique_id", cmd.uniqueID, "kind", cmd.kind)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, cmd.uniqueID)
	}
}

// worker executes one display's commands in arrival order until its queue
// is closed.
func (a *Agent) worker(q <-chan command) {
	defer a.workers.Done()
	for cmd := range q {
		a.execute(a.workCtx, cmd)
	}
}

// execute runs one command against the hardware and publishes the result.
func (a *Agent) execute(ctx context.Context, cmd command) {
	d, err := a.registry.Get(cmd.uniqueID)
	if err != nil {
		a.logger.Warn("command dropped", "command_id", cmd.id, "unique_id", cmd.uniqueID, "error", err)
		return
	}

	var change display.Change
	switch cmd.kind {
	case control.KindPower:
		change, err = a.commander.SetPower(ctx, d, cmd.on)
	case control.KindBrightness:
		change, err = a.commander.SetBrightness(ctx, d, cmd.value)
	}

	if change.Fields != 0 {
		a.publishChanges([]display.Change{change})
	}

	logArgs := []any{
		"command_id", cmd.id,
		"unique_id", cmd.uniqueID,
		"kind", cmd.kind,
		"latency", a.now().Sub(cmd.received),
	}
	switch {
	case err == nil:
		a.logger.Info("command applied", logArgs...)
	case errors.Is(err, context.Canceled):
		a.logger.Warn("command cancelled", append(logArgs, "error", err)...)
	default:
		a.logger.Error("command failed", append(logArgs, "error", err)...)
	}
}

// closeQueues stops accepting commands and waits for queued ones to finish,
// up to timeout. It reports whether every worker finished.
func (a *Agent) closeQueues(timeout time.Duration) bool {
	a.queuesMu.Lock()
	a.closing = true
	for uid, q := range a.queues {
		close(q)
		delete(a.queues, uid)
	}
	a.queuesMu.Unlock()

	done := make(chan struct{})
	go func() {
		a.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
