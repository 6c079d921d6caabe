package mqtt

import (
	"fmt"
	"strings"
)

// Home Assistant component types used by wlddc entities.
const (
	ComponentSwitch = "switch"
	ComponentNumber = "number"
	ComponentSensor = "sensor"
)

// Entity keys, one per display facet.
const (
	EntityPower      = "power"
	EntityBrightness = "brightness"
	EntityResolution = "resolution"
)

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics provides builders for the Home Assistant discovery topic tree.
//
// Layout, for prefix "homeassistant" and node "wlddc":
//
//	homeassistant/switch/wlddc/{uid}_power/config     discovery
//	homeassistant/switch/wlddc/{uid}/power/state      state
//	homeassistant/switch/wlddc/{uid}/power/set        command
//	homeassistant/wlddc/status                        agent availability (LWT)
//	homeassistant/wlddc/{uid}/availability            display availability
type Topics struct {
	Prefix string
	NodeID string
}

// NewTopics returns a Topics builder for a discovery prefix and node id.
func NewTopics(prefix, nodeID string) Topics {
	return Topics{Prefix: strings.TrimSuffix(prefix, "/"), NodeID: nodeID}
}

// =============================================================================
// Availability Topics
// =============================================================================

// AgentStatus returns the agent availability topic, also used as the Last Will.
func (t Topics) AgentStatus() string {
	return fmt.Sprintf("%s/%s/status", t.Prefix, t.NodeID)
}

// Availability returns the per-display availability topic.
func (t Topics) Availability(uid string) string {
	return fmt.Sprintf("%s/%s/%s/availability", t.Prefix, t.NodeID, uid)
}

// =============================================================================
// Entity Topics
// =============================================================================

// Discovery returns the retained discovery config topic for an entity.
func (t Topics) Discovery(component, uid, entity string) string {
	return fmt.Sprintf("%s/%s/%s/%s_%s/config", t.Prefix, component, t.NodeID, uid, entity)
}

// State returns the retained state topic for an entity.
func (t Topics) State(component, uid, entity string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/state", t.Prefix, component, t.NodeID, uid, entity)
}

// Command returns the command topic for an entity.
func (t Topics) Command(component, uid, entity string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/set", t.Prefix, component, t.NodeID, uid, entity)
}

// CommandFilter returns a subscription filter matching the command topic of
// every display for one entity kind.
func (t Topics) CommandFilter(component, entity string) string {
	return t.Command(component, "+", entity)
}

// PowerCommandFilter matches power commands for every display.
func (t Topics) PowerCommandFilter() string {
	return t.CommandFilter(ComponentSwitch, EntityPower)
}

// BrightnessCommandFilter matches brightness commands for every display.
func (t Topics) BrightnessCommandFilter() string {
	return t.CommandFilter(ComponentNumber, EntityBrightness)
}

// ParseCommand splits a command topic into its component, display uid and entity.
// ok is false for topics outside this node's command tree.
func (t Topics) ParseCommand(topic string) (component, uid, entity string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/")
	if !found {
		return "", "", "", false
	}

	// {component}/{node}/{uid}/{entity}/set
	parts := strings.Split(rest, "/")
	if len(parts) != 5 || parts[1] != t.NodeID || parts[4] != "set" {
		return "", "", "", false
	}
	if parts[0] == "" || parts[2] == "" || parts[3] == "" {
		return "", "", "", false
	}

	return parts[0], parts[2], parts[3], true
}
