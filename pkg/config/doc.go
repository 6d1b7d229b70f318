// Package config loads and validates the wave registry.
//
// The registry is a YAML file describing waves in deploy order and the
// components inside each wave. Loading performs three passes: YAML
// decoding with unknown fields rejected, struct-tag validation, and the
// preflight graph checks (duplicate names, self-dependencies, unknown
// dependencies, dependencies on the same or a later wave, empty
// registry). A registry that loads without error is safe to hand to the
// scheduler; no graph condition is re-checked at run time.
package config
