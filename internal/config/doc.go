// Package config loads inboxrules configuration from an optional YAML file
// (with ${VAR} expansion) and environment variables.
package config
