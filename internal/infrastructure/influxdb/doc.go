// Package influxdb provides optional InfluxDB telemetry for wlddc.
//
// It wraps the official influxdb-client-go v2 library and records two
// measurements:
//   - display_state: power, brightness, availability and resolution per display
//   - display_command: outcome, attempt count and latency of hardware commands
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteDisplayState(influxdb.DisplayState{UniqueID: "hnmnb00590", Power: "on"})
//
// Writes are non-blocking and batched (batch_size, flush_interval); async
// failures are delivered to the SetOnError callback.
package influxdb
