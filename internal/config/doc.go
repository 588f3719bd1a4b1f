// Package config loads and validates delegate configuration from TOML.
//
// Configuration is optional: when no file exists at the resolved path the
// defaults are used unchanged. All path fields are tilde-expanded and the
// subordinate agent binary honors the DELEGATE_AGENT_BIN environment
// override.
package config
