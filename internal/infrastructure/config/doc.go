// Package config handles loading and validating autobright configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with AUTOBRIGHT_* environment variables
//   - Validation of every section, reporting all problems at once
//   - Default value handling (a missing file is not an error for LoadOptional)
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.LoadOptional("/etc/autobright/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.Strategy)
package config
