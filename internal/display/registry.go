package display

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Field is a bitmask of the parts of a Display that changed.
type Field uint8

// Changed fields. FieldIdentity covers anything that alters the set of
// entities a display exposes (bus binding, capabilities, names).
const (
	FieldPower Field = 1 << iota
	FieldBrightness
	FieldResolution
	FieldAvailability
	FieldIdentity
	FieldError
)

// Change describes one display whose record was altered.
type Change struct {
	UniqueID string
	New      bool
	Fields   Field
	Display  Display // copy after the change
}

// Has reports whether f changed.
func (c Change) Has(f Field) bool {
	return c.Fields&f != 0
}

// StateUpdate carries observed or commanded state for one display.
// Nil fields are left untouched.
type StateUpdate struct {
	Power                 *PowerState
	Brightness            *int
	Resolution            *string
	Error                 *string
	Unresponsive          *bool
	BrightnessUnsupported *bool
	PowerUnsupported      *bool

	// At is when the value was observed or written. Power and brightness
	// older than the last accepted write are ignored.
	At time.Time
}

type entry struct {
	display      Display
	powerAt      time.Time
	brightnessAt time.Time
}

// Registry is the in-memory set of known displays.
//
// It is the single source of truth for the agent, the command executor and
// the HTTP API. The lock is held only while copying records in or out, never
// across hardware or network I/O.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Len returns the number of known displays, present or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Get returns a copy of the display with the given unique id.
// Returns ErrDisplayNotFound if it is unknown.
func (r *Registry) Get(uniqueID string) (Display, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[uniqueID]
	if !ok {
		return Display{}, fmt.Errorf("%w: %s", ErrDisplayNotFound, uniqueID)
	}
	return e.display.Clone(), nil
}

// Snapshot returns copies of every known display sorted by UniqueID.
func (r *Registry) Snapshot() []Display {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Display, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.display.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// Present returns copies of the displays enumerated in the latest tick.
func (r *Registry) Present() []Display {
	all := r.Snapshot()
	out := all[:0]
	for _, d := range all {
		if d.Present {
			out = append(out, d)
		}
	}
	return out
}

// Restore seeds the registry with persisted identities. They start absent
// with unknown power until a correlation sees them. Ids already known are
// left alone. Returns the number of records added.
func (r *Registry) Restore(displays []Display) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, d := range displays {
		if d.UniqueID == "" {
			continue
		}
		if _, ok := r.entries[d.UniqueID]; ok {
			continue
		}
		d = d.Clone()
		d.Present = false
		d.Power = PowerUnknown
		d.Brightness = nil
		r.entries[d.UniqueID] = &entry{display: d}
		added++
	}
	if added > 0 {
		r.logger.Info("display identities restored", "count", added)
	}
	return added
}

// ApplyCorrelation merges a correlation result into the registry.
//
// Displays in res are marked present and take the result's identity fields.
// Power is applied only if res.Taken is not older than the last power write,
// so a command issued during a slow poll is not reverted. Displays missing
// from res are kept, marked absent with unknown power.
//
// Returns the changes sorted by UniqueID.
func (r *Registry) ApplyCorrelation(res Result) []Change {
	taken := res.Taken
	if taken.IsZero() {
		taken = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var changes []Change
	seen := make(map[string]bool, len(res.Displays))
	claimedOutputs := make(map[string]bool, len(res.Displays))
	claimedBuses := make(map[string]bool, len(res.Displays))

	for _, d := range res.Displays {
		seen[d.UniqueID] = true
		claimedOutputs[d.OutputID] = true
		if d.BusPath != "" {
			claimedBuses[d.BusPath] = true
		}

		e, ok := r.entries[d.UniqueID]
		if !ok {
			nd := d.Clone()
			nd.Present = true
			nd.LastSeen = taken
			r.entries[nd.UniqueID] = &entry{display: nd, powerAt: taken}
			changes = append(changes, Change{
				UniqueID: nd.UniqueID,
				New:      true,
				Fields:   FieldPower | FieldResolution | FieldAvailability | FieldIdentity,
				Display:  nd.Clone(),
			})
			r.logger.Info("display discovered", "unique_id", nd.UniqueID, "output", nd.OutputID, "bus", nd.BusPath, "match", nd.Match)
			continue
		}

		var fields Field
		cur := &e.display

		if cur.BusPath != d.BusPath {
			r.logger.Info("display bus changed", "unique_id", d.UniqueID, "from", cur.BusPath, "to", d.BusPath)
			cur.BrightnessUnsupported = false
			if cur.Brightness != nil {
				cur.Brightness = nil
				fields |= FieldBrightness
			}
			e.brightnessAt = time.Time{}
			fields |= FieldIdentity
		}
		if cur.OutputID != d.OutputID && cur.PowerUnsupported {
			cur.PowerUnsupported = false
			fields |= FieldIdentity
		}
		if cur.OutputID != d.OutputID || cur.BusPath != d.BusPath ||
			cur.Make != d.Make || cur.Model != d.Model || cur.Serial != d.Serial ||
			cur.Match != d.Match || cur.BrightnessCapable != d.BrightnessCapable {
			fields |= FieldIdentity
		}
		cur.OutputID = d.OutputID
		cur.BusPath = d.BusPath
		cur.Make = d.Make
		cur.Model = d.Model
		cur.Serial = d.Serial
		cur.Match = d.Match
		cur.BrightnessCapable = d.BrightnessCapable

		if !cur.Present {
			cur.Present = true
			fields |= FieldAvailability
			r.logger.Info("display reappeared", "unique_id", d.UniqueID, "output", d.OutputID)
		}
		cur.LastSeen = taken

		if !taken.Before(e.powerAt) {
			if cur.Power != d.Power {
				cur.Power = d.Power
				fields |= FieldPower
			}
			e.powerAt = taken
		}
		if cur.Resolution != d.Resolution {
			cur.Resolution = d.Resolution
			fields |= FieldResolution
		}

		if fields != 0 {
			changes = append(changes, Change{UniqueID: d.UniqueID, Fields: fields, Display: cur.Clone()})
		}
	}

	for id, e := range r.entries {
		if seen[id] {
			continue
		}
		cur := &e.display

		// An absent record must not keep claiming hardware now bound elsewhere.
		if claimedOutputs[cur.OutputID] {
			cur.OutputID = ""
		}
		if cur.BusPath != "" && claimedBuses[cur.BusPath] {
			cur.BusPath = ""
		}

		if !cur.Present {
			continue
		}
		cur.Present = false
		cur.Power = PowerUnknown
		e.powerAt = taken
		changes = append(changes, Change{UniqueID: id, Fields: FieldAvailability | FieldPower, Display: cur.Clone()})
		r.logger.Info("display disappeared", "unique_id", id)
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].UniqueID < changes[j].UniqueID })
	return changes
}

// UpdateState applies observed or commanded state to one display.
// Returns ErrDisplayNotFound if the id is unknown.
func (r *Registry) UpdateState(uniqueID string, u StateUpdate) (Change, error) {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[uniqueID]
	if !ok {
		return Change{}, fmt.Errorf("%w: %s", ErrDisplayNotFound, uniqueID)
	}
	cur := &e.display
	var fields Field

	if u.Power != nil && !at.Before(e.powerAt) {
		if cur.Power != *u.Power {
			cur.Power = *u.Power
			fields |= FieldPower
		}
		e.powerAt = at
	}

	if u.Brightness != nil && !at.Before(e.brightnessAt) {
		if cur.Brightness == nil || *cur.Brightness != *u.Brightness {
			cur.Brightness = IntPtr(*u.Brightness)
			fields |= FieldBrightness
		}
		e.brightnessAt = at
	}

	if u.Resolution != nil && cur.Resolution != *u.Resolution {
		cur.Resolution = *u.Resolution
		fields |= FieldResolution
	}

	if u.Error != nil && cur.LastError != *u.Error {
		cur.LastError = *u.Error
		fields |= FieldError
	}

	if u.Unresponsive != nil && cur.Unresponsive != *u.Unresponsive {
		cur.Unresponsive = *u.Unresponsive
		fields |= FieldAvailability
		if cur.Unresponsive {
			r.logger.Warn("display unresponsive", "unique_id", uniqueID)
		} else {
			r.logger.Info("display responsive again", "unique_id", uniqueID)
		}
	}

	if u.BrightnessUnsupported != nil && cur.BrightnessUnsupported != *u.BrightnessUnsupported {
		cur.BrightnessUnsupported = *u.BrightnessUnsupported
		fields |= FieldIdentity
		if cur.BrightnessUnsupported && cur.Brightness != nil {
			cur.Brightness = nil
			fields |= FieldBrightness
		}
	}

	if u.PowerUnsupported != nil && cur.PowerUnsupported != *u.PowerUnsupported {
		cur.PowerUnsupported = *u.PowerUnsupported
		fields |= FieldIdentity
	}

	return Change{UniqueID: uniqueID, Fields: fields, Display: cur.Clone()}, nil
}
