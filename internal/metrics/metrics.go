// Package metrics owns the single prometheus registry shared by the WAL
// (B), the receiver tracker (E), the state store (D), and the streaming
// execution loop (G), so a process wiring all four together exposes one
// coherent /metrics endpoint instead of four disjoint private registries.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry wraps the shared prometheus registry. A process wires one
// Registry at startup and passes its Registerer to each component's
// NewMetrics constructor; the per-component metrics structs are not held here.
type Registry struct {
	reg *prometheus.Registry
}

// New creates an empty registry ready to be handed to each component's
// NewMetrics constructor.
func New() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// Registerer exposes the underlying prometheus.Registerer, e.g. for
// registering process/Go runtime collectors or serving /metrics via
// promhttp.HandlerFor.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer exposes the underlying prometheus.Gatherer for promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
