// Package display models the physical monitors managed by wlddc.
//
// Two independent enumerations describe the same hardware: the Wayland
// compositor lists outputs (connector names, EDID make/model/serial, power)
// and ddcutil lists DDC/CI buses (i2c paths, EDID data, feature support).
// Neither shares a key with the other, so each tick they are joined here.
//
// # Architecture
//
//	┌──────────────┐   ┌──────────────┐
//	│ OutputSource │   │  BusSource   │   (backends/wlrrandr, backends/ddcutil)
//	└──────┬───────┘   └──────┬───────┘
//	       │ []Output         │ []Bus
//	       └────────┬─────────┘
//	                ▼
//	         ┌─────────────┐   overrides, previous identities
//	         │  Correlate  │◀──────────────────────────────
//	         └──────┬──────┘
//	                │ Result
//	                ▼
//	         ┌─────────────┐        ┌──────────────────┐
//	         │  Registry   │───────▶│ SQLiteRepository │
//	         │ (in-memory) │        │ (identities only)│
//	         └─────────────┘        └──────────────────┘
//
// Correlate is a pure function: the same inputs in any order produce the
// same Displays with the same unique ids. The Registry owns live state and
// reports what changed so the agent can publish only deltas.
//
// # Unique ids
//
// A unique id is derived from the EDID serial, falling back to the model and
// then to the connector name, lowercased with every other character run
// replaced by an underscore. Collisions get a _2, _3 suffix in connector
// order. Once assigned an id is reused for as long as the same connector or
// bus reports a compatible unit, including after the display was absent.
package display
