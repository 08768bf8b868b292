// Package driving provides interfaces for the application's entry points (primary/inbound ports).
//
// The CLI (and any future transport) drives the core exclusively
// through these interfaces.
package driving
