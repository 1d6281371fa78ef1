// Package component defines lifecycle-managed infrastructure pieces of a
// framepipe process: the telemetry providers, the frame ledger database and
// the status server.
//
// Components are registered with a Registry, started in registration order
// and stopped in reverse. The status server reports their Health.
package component
