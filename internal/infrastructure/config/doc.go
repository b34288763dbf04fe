// Package config handles loading and validating the doorbell configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default values matching the reference hardware (BCM pins 18/22,
//     volume 17, 44-track catalog, 30s cooldown, 5s reconnect delay)
//
// Security Considerations:
//   - MQTT credentials and the update secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("/etc/doorbell/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topics.Status)
package config
