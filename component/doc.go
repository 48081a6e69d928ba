// Package component defines the lifecycle contract shared by flows, sources
// and notification consumers.
//
// Components are started in registration order and stopped in reverse order
// by a Registry. BaseLazyComponent defers expensive setup, such as loading
// cloud credentials, until first use.
//
// # Interfaces
//
//   - Component: Start/Stop/Health lifecycle
//   - Registry: ordered start, reverse stop, aggregated health
//   - BaseLazyComponent: double-checked lazy initialization with health and close hooks
package component
