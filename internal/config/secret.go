package config

import "log/slog"

// Secret is a credential string that is passed through to other
// components but never printed. Use Reveal to obtain the raw value at
// the point where it leaves the process.
type Secret string

const redacted = "[redacted]"

// String implements fmt.Stringer without exposing the value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// LogValue implements slog.LogValuer so secrets stay out of logs even
// when passed as attributes.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Reveal returns the raw credential.
func (s Secret) Reveal() string {
	return string(s)
}
