// Package mdns finds MQTT brokers advertised over multicast DNS.
//
// Home Assistant's Mosquitto add-on and most standalone brokers announce
// themselves as _mqtt._tcp. Setting mqtt.broker.host to "auto" makes the
// agent browse for one before every connection attempt, so a broker that
// moves to a new address is picked up on the next reconnect.
package mdns
