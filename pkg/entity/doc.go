// Package entity defines the typed model the orchestration engine
// operates on: Ships (hosts running a Docker daemon), Services (named
// groups of instances sharing an image and defaults), and Instances
// (one deployable container bound to one ship).
//
// The model is built once per invocation from the parsed environment
// description and is immutable for the duration of a play. It carries
// no behavior beyond validation, identity, and environment resolution.
package entity
