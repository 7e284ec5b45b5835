// Package config loads, normalizes, and validates PengyStream configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the PENGYSTREAM_WATCH_DIRS
// environment fallback. Validation happens once at load time; any invalid
// value is reported as an error so the daemon refuses to start instead of
// discovering the problem while jobs are running.
//
// Components never read Config directly at runtime. They receive the
// immutable policy.Policy built by Config.Policy.
package config
