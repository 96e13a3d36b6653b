// Package config loads versioned YAML environment descriptions and
// resolves them into the entity model the engine operates on.
//
// A description declares ships, ship_defaults, registries, and services
// with their per-instance specs. The document may reference environment
// variables as ${VAR}; references are expanded before decoding. The
// top-level schema field selects parsing conventions, most notably the
// direction of volume bindings.
//
// The engine only ever sees the resolved entity.Model; nothing past
// this package touches the raw document.
package config
