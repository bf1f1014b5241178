// Package config loads and validates the runtime bootstrap
// configuration. Configuration files are written in CUE and checked
// against a built-in schema before being decoded into Go types, so a
// malformed file fails fast with a position-annotated error instead of
// surfacing later as a half-built API.
package config
