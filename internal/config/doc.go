// Package config loads the daemon configuration from a JSON or YAML file,
// applies environment overrides and defaults, and validates the paths the
// selected providers need. The result is treated as immutable for the
// process lifetime.
package config
