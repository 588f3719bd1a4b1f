// Package logging centralizes slog construction for the CLI and the session
// engine. It offers console and JSON handlers, typed attribute helpers, and
// standardized field keys so session activity stays greppable across
// components.
package logging
