// Package config provides configuration loading for the message bridge.
//
// Configuration is read from a YAML file with three layers of precedence:
// hardcoded defaults, file values, then MSGBRIDGE_* environment variables.
// The loaded configuration is validated before use so that startup fails
// fast on nonsense values rather than at first use.
package config
