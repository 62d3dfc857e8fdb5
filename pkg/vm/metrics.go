// Copyright 2026 The Ember Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vm

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters a running VM keeps on its own private
// Prometheus registry. No CLI subcommand serves this registry over HTTP.
// It is scoped per-VM rather than to the global default registerer,
// since a process may run more than one VM (the
// fuzzer drives many short-lived ones) and the default registerer panics
// on a second registration of the same metric name.
type Metrics struct {
	Registry *prometheus.Registry

	fibersSpawned        prometheus.Counter
	instructionsExecuted prometheus.Counter
	channelsCreated      prometheus.Counter
}

// NewMetrics builds a fresh registry and registers this VM's counters
// onto it.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		fibersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ember_vm_fibers_spawned_total",
			Help: "Number of fibers spawned by the VM, including the root and scope children.",
		}),
		instructionsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ember_vm_instructions_executed_total",
			Help: "Number of byte-code instructions executed across all fibers.",
		}),
		channelsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ember_vm_channels_created_total",
			Help: "Number of channels created via create-channel.",
		}),
	}
	m.Registry.MustRegister(m.fibersSpawned, m.instructionsExecuted, m.channelsCreated)
	return m
}
