// Package config handles loading and validating capture service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CAPTURE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The JWT secret signs requester identities and must be changed before production use
//
// Usage:
//
//	cfg, err := config.Load("configs/capture.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.Name)
package config
