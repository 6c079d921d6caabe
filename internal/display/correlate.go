package display

import (
	"fmt"
	"sort"
	"strings"
)

// pairing is an output bound (or not) to a bus by one correlation rule.
type pairing struct {
	output     Output
	bus        *Bus
	method     MatchMethod
	brightness bool
}

// correlation carries the working state of one Correlate call.
type correlation struct {
	outputs    []Output // sorted by ID, de-duplicated
	buses      []Bus    // sorted by Path, de-duplicated
	usedOutput map[string]bool
	usedBus    map[string]bool
	pairs      []pairing
	result     Result
}

// Correlate merges one snapshot of compositor outputs and DDC/CI buses into
// canonical Display records.
//
// Rules are applied in priority order, each only to what earlier rules left:
//  1. Overrides pin an output to a bus (or to nothing, for power-only).
//  2. Serial equality, case-insensitive, when the serial is unique on both sides.
//  3. (make, model) equality when the group has exactly one output and one bus.
//     Larger groups are reported as ambiguities and left unmatched.
//  4. Remaining outputs become power-only displays; remaining buses are
//     reported as unmatched.
//
// Unique ids are then carried over from previous where the same unit is
// recognised, or derived fresh. Every input is put in canonical order first,
// so the result does not depend on enumeration order.
func Correlate(outputs []Output, buses []Bus, overrides []Override, previous []Display) Result {
	c := newCorrelation(outputs, buses)
	c.applyOverrides(overrides)
	c.matchSerials()
	c.matchModels()
	c.collectLeftovers()

	displays := make([]Display, 0, len(c.pairs))
	for _, p := range c.pairs {
		displays = append(displays, buildDisplay(p))
	}
	sort.Slice(displays, func(i, j int) bool { return displays[i].OutputID < displays[j].OutputID })

	assignIDs(displays, previous)
	sort.Slice(displays, func(i, j int) bool { return displays[i].UniqueID < displays[j].UniqueID })

	c.result.Displays = displays
	return c.result
}

func newCorrelation(outputs []Output, buses []Bus) *correlation {
	c := &correlation{
		usedOutput: make(map[string]bool),
		usedBus:    make(map[string]bool),
	}

	sortedOutputs := append([]Output(nil), outputs...)
	sort.Slice(sortedOutputs, func(i, j int) bool { return outputLess(sortedOutputs[i], sortedOutputs[j]) })
	for i, o := range sortedOutputs {
		if i > 0 && o.ID == sortedOutputs[i-1].ID {
			c.warn("output %q enumerated more than once, keeping the first", o.ID)
			continue
		}
		c.outputs = append(c.outputs, o)
	}

	sortedBuses := append([]Bus(nil), buses...)
	sort.Slice(sortedBuses, func(i, j int) bool { return busLess(sortedBuses[i], sortedBuses[j]) })
	for i, b := range sortedBuses {
		if i > 0 && b.Path == sortedBuses[i-1].Path {
			c.warn("bus %q enumerated more than once, keeping the first", b.Path)
			continue
		}
		c.buses = append(c.buses, b)
	}

	return c
}

// outputLess orders outputs by every field, so which duplicate of an ID
// survives does not depend on enumeration order.
func outputLess(a, b Output) bool {
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if a.Serial != b.Serial {
		return a.Serial < b.Serial
	}
	if a.Make != b.Make {
		return a.Make < b.Make
	}
	if a.Model != b.Model {
		return a.Model < b.Model
	}
	if a.Enabled != b.Enabled {
		return a.Enabled
	}
	return a.Mode < b.Mode
}

// busLess is outputLess for buses.
func busLess(a, b Bus) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Serial != b.Serial {
		return a.Serial < b.Serial
	}
	if a.Make != b.Make {
		return a.Make < b.Make
	}
	if a.Model != b.Model {
		return a.Model < b.Model
	}
	return a.BrightnessCapable && !b.BrightnessCapable
}

func (c *correlation) warn(format string, args ...any) {
	c.result.Warnings = append(c.result.Warnings, fmt.Sprintf(format, args...))
}

func (c *correlation) pair(o Output, b *Bus, method MatchMethod, brightness bool) {
	c.usedOutput[o.ID] = true
	if b != nil {
		c.usedBus[b.Path] = true
	}
	c.pairs = append(c.pairs, pairing{output: o, bus: b, method: method, brightness: brightness})
}

func (c *correlation) findOutput(id string) (Output, bool) {
	for _, o := range c.outputs {
		if o.ID == id && !c.usedOutput[o.ID] {
			return o, true
		}
	}
	return Output{}, false
}

func (c *correlation) findBus(path string) (Bus, bool) {
	for _, b := range c.buses {
		if b.Path == path && !c.usedBus[b.Path] {
			return b, true
		}
	}
	return Bus{}, false
}

// applyOverrides honours manual pins before any automatic rule runs.
func (c *correlation) applyOverrides(overrides []Override) {
	sorted := append([]Override(nil), overrides...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OutputID < sorted[j].OutputID })

	for _, ov := range sorted {
		var bus *Bus
		if ov.BusPath != "" {
			if b, ok := c.findBus(ov.BusPath); ok {
				bus = &b
				c.usedBus[b.Path] = true
			} else {
				c.warn("override for %s: bus %s not present, treating as power-only", ov.OutputID, ov.BusPath)
			}
		}

		out, ok := c.findOutput(ov.OutputID)
		if !ok {
			c.warn("override for %s: output not present", ov.OutputID)
			if bus != nil {
				c.result.UnmatchedBuses = append(c.result.UnmatchedBuses, *bus)
			}
			continue
		}

		c.pair(out, bus, MatchOverride, ov.Brightness)
	}
}

// matchSerials pairs outputs and buses whose serial is unique on both sides.
func (c *correlation) matchSerials() {
	outBySerial := make(map[string][]Output)
	for _, o := range c.outputs {
		if s := normalize(o.Serial); s != "" && !c.usedOutput[o.ID] {
			outBySerial[s] = append(outBySerial[s], o)
		}
	}
	busBySerial := make(map[string][]Bus)
	for _, b := range c.buses {
		if s := normalize(b.Serial); s != "" && !c.usedBus[b.Path] {
			busBySerial[s] = append(busBySerial[s], b)
		}
	}

	for _, serial := range sortedKeys(outBySerial) {
		outs, buses := outBySerial[serial], busBySerial[serial]
		if len(outs) == 1 && len(buses) == 1 {
			c.pair(outs[0], &buses[0], MatchSerial, true)
		}
	}
}

// modelKey groups candidates for the (make, model) rule.
type modelKey struct {
	make  string
	model string
}

// matchModels pairs singleton (make, model) groups and records ambiguous ones.
func (c *correlation) matchModels() {
	outByModel := make(map[modelKey][]Output)
	for _, o := range c.outputs {
		if c.usedOutput[o.ID] || normalize(o.Model) == "" {
			continue
		}
		k := modelKey{normalize(o.Make), normalize(o.Model)}
		outByModel[k] = append(outByModel[k], o)
	}
	busByModel := make(map[modelKey][]Bus)
	for _, b := range c.buses {
		if c.usedBus[b.Path] || normalize(b.Model) == "" {
			continue
		}
		k := modelKey{normalize(b.Make), normalize(b.Model)}
		busByModel[k] = append(busByModel[k], b)
	}

	keys := make([]modelKey, 0, len(outByModel))
	for k := range outByModel {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].make != keys[j].make {
			return keys[i].make < keys[j].make
		}
		return keys[i].model < keys[j].model
	})

	for _, k := range keys {
		outs, buses := outByModel[k], busByModel[k]
		switch {
		case len(buses) == 0:
			continue
		case len(outs) == 1 && len(buses) == 1:
			c.pair(outs[0], &buses[0], MatchModel, true)
		default:
			amb := Ambiguity{Make: outs[0].Make, Model: outs[0].Model}
			for _, o := range outs {
				amb.Outputs = append(amb.Outputs, o.ID)
			}
			for _, b := range buses {
				amb.Buses = append(amb.Buses, b.Path)
			}
			c.result.Ambiguities = append(c.result.Ambiguities, amb)
			c.warn("%v: %s %s matches outputs %s and buses %s; add an override to bind them",
				ErrAmbiguous, amb.Make, amb.Model,
				strings.Join(amb.Outputs, ", "), strings.Join(amb.Buses, ", "))
		}
	}
}

// collectLeftovers turns unmatched outputs into power-only displays and
// reports unmatched buses.
func (c *correlation) collectLeftovers() {
	for _, o := range c.outputs {
		if !c.usedOutput[o.ID] {
			c.pair(o, nil, MatchNone, false)
		}
	}
	for _, b := range c.buses {
		if !c.usedBus[b.Path] {
			c.usedBus[b.Path] = true
			c.result.UnmatchedBuses = append(c.result.UnmatchedBuses, b)
			c.warn("bus %s (%s %s) has no matching output, ignoring", b.Path, b.Make, b.Model)
		}
	}
	sort.Slice(c.result.UnmatchedBuses, func(i, j int) bool {
		return c.result.UnmatchedBuses[i].Path < c.result.UnmatchedBuses[j].Path
	})
}

func buildDisplay(p pairing) Display {
	d := Display{
		OutputID:   p.output.ID,
		Make:       p.output.Make,
		Model:      p.output.Model,
		Serial:     p.output.Serial,
		Match:      p.method,
		Resolution: p.output.Mode,
		Power:      PowerOff,
		Present:    true,
	}
	if p.output.Enabled {
		d.Power = PowerOn
	}

	if p.bus != nil {
		d.BusPath = p.bus.Path
		d.BrightnessCapable = p.bus.BrightnessCapable && p.brightness
		if d.Make == "" {
			d.Make = p.bus.Make
		}
		if d.Model == "" {
			d.Model = p.bus.Model
		}
		if d.Serial == "" {
			d.Serial = p.bus.Serial
		}
	}

	return d
}

// assignIDs sets UniqueID on displays (sorted by OutputID).
//
// A previous id is reused first by output, then by bus, then by serial,
// provided the unit looks the same. The serial pass keeps a monitor's id
// when it returns on a renamed connector and a renumbered bus. Fresh ids
// avoid every id in previous so that a display which is temporarily absent
// gets its id back when it returns.
func assignIDs(displays []Display, previous []Display) {
	prev := append([]Display(nil), previous...)
	sort.Slice(prev, func(i, j int) bool { return prev[i].UniqueID < prev[j].UniqueID })

	byOutput := make(map[string]Display)
	byBus := make(map[string]Display)
	bySerial := make(map[string]Display)
	reserved := make(map[string]bool, len(prev))
	for _, p := range prev {
		reserved[p.UniqueID] = true
		if serial := normalize(p.Serial); serial != "" {
			if _, dup := bySerial[serial]; !dup {
				bySerial[serial] = p
			}
		}
		if _, dup := byOutput[p.OutputID]; p.OutputID != "" && !dup {
			byOutput[p.OutputID] = p
		}
		if _, dup := byBus[p.BusPath]; p.BusPath != "" && !dup {
			byBus[p.BusPath] = p
		}
	}

	taken := make(map[string]bool, len(displays))
	reuse := func(i int, p Display, ok bool) {
		if ok && !taken[p.UniqueID] && sameUnit(p, displays[i]) {
			displays[i].UniqueID = p.UniqueID
			taken[p.UniqueID] = true
		}
	}

	for i := range displays {
		p, ok := byOutput[displays[i].OutputID]
		reuse(i, p, ok)
	}
	for i := range displays {
		if displays[i].UniqueID != "" || displays[i].BusPath == "" {
			continue
		}
		p, ok := byBus[displays[i].BusPath]
		reuse(i, p, ok)
	}
	for i := range displays {
		serial := normalize(displays[i].Serial)
		if displays[i].UniqueID != "" || serial == "" {
			continue
		}
		p, ok := bySerial[serial]
		reuse(i, p, ok)
	}

	for i := range displays {
		if displays[i].UniqueID != "" {
			continue
		}
		base := baseID(displays[i])
		id := base
		for n := 2; reserved[id] || taken[id]; n++ {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		displays[i].UniqueID = id
		taken[id] = true
	}
}

// sameUnit reports whether a previous record can describe the same physical
// monitor as d. Known serials or models that differ rule it out.
func sameUnit(prev, d Display) bool {
	if ps, ds := normalize(prev.Serial), normalize(d.Serial); ps != "" && ds != "" && ps != ds {
		return false
	}
	if pm, dm := normalize(prev.Model), normalize(d.Model); pm != "" && dm != "" && pm != dm {
		return false
	}
	return true
}

// baseID derives the id stem: serial, else model, else output name.
func baseID(d Display) string {
	for _, candidate := range []string{d.Serial, d.Model, d.OutputID} {
		if id := Sanitize(candidate); id != "" {
			return id
		}
	}
	return "display"
}

// Sanitize lowercases s and collapses every run of characters outside
// [a-z0-9] into a single underscore, trimming underscores at both ends.
// The result is safe as an MQTT topic level and a Home Assistant object id.
func Sanitize(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
