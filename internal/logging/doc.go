// Package logging builds the slog.Logger both binaries hand to their
// components. Format "json" selects slog's JSON handler; anything else gets
// a single-line colorized handler built on fatih/color.
package logging
