// Package config loads shardex settings from YAML, then applies SHARDEX_*
// environment variables on top. Command-line flags are applied last by the
// CLI.
package config
