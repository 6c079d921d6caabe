// Package config handles loading and validating wlddc configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with WLDDC_* environment variables
//   - Validation of every field in a single pass
//   - Watching the file for override changes at runtime
//
// Security Considerations:
//   - MQTT and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.ResolvePath(flagPath))
//	if err != nil {
//	    return err // errors.Is(err, config.ErrInvalidConfig)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
