package agent

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/mqtt"
)

// Device block values shared by every entity.
const (
	deviceModel        = "Wayland Monitor Controller"
	deviceManufacturer = "wlddc"
)

// Power state payloads.
const (
	payloadOn  = "ON"
	payloadOff = "OFF"
)

// Brightness slider range.
const (
	brightnessMin  = 0
	brightnessMax  = 100
	brightnessStep = 5
)

type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

type availability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
}

// entityConfig is a Home Assistant MQTT discovery payload.
type entityConfig struct {
	Name             string         `json:"name"`
	UniqueID         string         `json:"unique_id"`
	StateTopic       string         `json:"state_topic"`
	CommandTopic     string         `json:"command_topic,omitempty"`
	Availability     []availability `json:"availability"`
	AvailabilityMode string         `json:"availability_mode"`
	Device           deviceInfo     `json:"device"`
	Icon             string         `json:"icon,omitempty"`

	// switch
	PayloadOn  string `json:"payload_on,omitempty"`
	PayloadOff string `json:"payload_off,omitempty"`
	StateOn    string `json:"state_on,omitempty"`
	StateOff   string `json:"state_off,omitempty"`

	// number
	Min               *int   `json:"min,omitempty"`
	Max               *int   `json:"max,omitempty"`
	Step              int    `json:"step,omitempty"`
	Mode              string `json:"mode,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
}

// message is one retained publish.
type message struct {
	topic   string
	payload []byte
}

// entity identifies one Home Assistant entity of a display.
type entity struct {
	component string
	key       string
}

var (
	powerEntity      = entity{mqtt.ComponentSwitch, mqtt.EntityPower}
	brightnessEntity = entity{mqtt.ComponentNumber, mqtt.EntityBrightness}
	resolutionEntity = entity{mqtt.ComponentSensor, mqtt.EntityResolution}

	allEntities = []entity{powerEntity, brightnessEntity, resolutionEntity}
)

// entitiesFor returns the entities a display exposes.
func entitiesFor(d display.Display) map[entity]bool {
	return map[entity]bool{
		powerEntity:      true,
		brightnessEntity: d.HasBrightness(),
		resolutionEntity: true,
	}
}

// discoveryBuilder renders discovery and state messages for one node.
type discoveryBuilder struct {
	topics     mqtt.Topics
	deviceID   string
	deviceName string
	version    string
}

func (b discoveryBuilder) device() deviceInfo {
	return deviceInfo{
		Identifiers:  []string{b.deviceID},
		Name:         b.deviceName,
		Model:        deviceModel,
		Manufacturer: deviceManufacturer,
		SWVersion:    b.version,
	}
}

func (b discoveryBuilder) availability(uid string) []availability {
	return []availability{
		{Topic: b.topics.AgentStatus(), PayloadAvailable: mqtt.PayloadOnline, PayloadNotAvailable: mqtt.PayloadOffline},
		{Topic: b.topics.Availability(uid), PayloadAvailable: mqtt.PayloadOnline, PayloadNotAvailable: mqtt.PayloadOffline},
	}
}

// label is the entity name prefix shown in Home Assistant.
func label(d display.Display) string {
	switch {
	case d.Model != "":
		return d.Model
	case d.OutputID != "":
		return d.OutputID
	default:
		return d.UniqueID
	}
}

// config returns the discovery payload for one entity of a display.
func (b discoveryBuilder) config(d display.Display, e entity) entityConfig {
	uid := d.UniqueID
	cfg := entityConfig{
		UniqueID:         fmt.Sprintf("%s_%s_%s", b.deviceID, uid, e.key),
		StateTopic:       b.topics.State(e.component, uid, e.key),
		Availability:     b.availability(uid),
		AvailabilityMode: "all",
		Device:           b.device(),
	}

	switch e {
	case powerEntity:
		cfg.Name = label(d) + " Power"
		cfg.CommandTopic = b.topics.Command(e.component, uid, e.key)
		cfg.PayloadOn = payloadOn
		cfg.PayloadOff = payloadOff
		cfg.StateOn = payloadOn
		cfg.StateOff = payloadOff
		cfg.Icon = "mdi:monitor"
	case brightnessEntity:
		lo, hi := brightnessMin, brightnessMax
		cfg.Name = label(d) + " Brightness"
		cfg.CommandTopic = b.topics.Command(e.component, uid, e.key)
		cfg.Min = &lo
		cfg.Max = &hi
		cfg.Step = brightnessStep
		cfg.Mode = "slider"
		cfg.UnitOfMeasurement = "%"
		cfg.Icon = "mdi:brightness-6"
	case resolutionEntity:
		cfg.Name = label(d) + " Resolution"
		cfg.Icon = "mdi:monitor-screenshot"
	}
	return cfg
}

// discovery returns the discovery messages for a display. Entities the
// display no longer exposes but that were announced before get an empty
// retained payload, which removes them from Home Assistant. announced is
// updated in place.
func (b discoveryBuilder) discovery(d display.Display, announced map[string]bool) ([]message, error) {
	want := entitiesFor(d)
	msgs := make([]message, 0, len(allEntities))

	for _, e := range allEntities {
		topic := b.topics.Discovery(e.component, d.UniqueID, e.key)
		if !want[e] {
			if announced[topic] {
				msgs = append(msgs, message{topic: topic, payload: []byte{}})
				delete(announced, topic)
			}
			continue
		}

		payload, err := json.Marshal(b.config(d, e))
		if err != nil {
			return nil, fmt.Errorf("marshal %s discovery for %s: %w", e.key, d.UniqueID, err)
		}
		msgs = append(msgs, message{topic: topic, payload: payload})
		announced[topic] = true
	}
	return msgs, nil
}

// availabilityMessage returns the display availability message.
func (b discoveryBuilder) availabilityMessage(d display.Display) message {
	payload := mqtt.PayloadOffline
	if d.Available() {
		payload = mqtt.PayloadOnline
	}
	return message{topic: b.topics.Availability(d.UniqueID), payload: []byte(payload)}
}

// stateMessages returns state messages for the fields in mask. Unknown
// values are not published.
func (b discoveryBuilder) stateMessages(d display.Display, mask display.Field) []message {
	var msgs []message
	uid := d.UniqueID

	if mask&display.FieldPower != 0 {
		switch d.Power {
		case display.PowerOn:
			msgs = append(msgs, message{b.topics.State(mqtt.ComponentSwitch, uid, mqtt.EntityPower), []byte(payloadOn)})
		case display.PowerOff:
			msgs = append(msgs, message{b.topics.State(mqtt.ComponentSwitch, uid, mqtt.EntityPower), []byte(payloadOff)})
		}
	}
	if mask&display.FieldBrightness != 0 && d.HasBrightness() && d.Brightness != nil {
		msgs = append(msgs, message{
			b.topics.State(mqtt.ComponentNumber, uid, mqtt.EntityBrightness),
			[]byte(strconv.Itoa(*d.Brightness)),
		})
	}
	if mask&display.FieldResolution != 0 && d.Resolution != "" {
		msgs = append(msgs, message{b.topics.State(mqtt.ComponentSensor, uid, mqtt.EntityResolution), []byte(d.Resolution)})
	}
	return msgs
}

// allFields selects every state field.
const allFields = display.FieldPower | display.FieldBrightness | display.FieldResolution
