// Package prompts builds the system turns that seed every conversation.
//
// The default system prompt is Go code rather than a config file so the
// binary works without a prompts directory. Operators override it by
// placing system.txt in the configured prompts directory, next to an
// optional tools.json catalog hint.
package prompts
