// Package config handles loading and validating identity service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with IDENTITY_* environment variables
//   - Validation of required fields and token lifetimes
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (JWT secret, bootstrap password, broker credentials)
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Security.Tokens.EphemeralTTL)
package config
