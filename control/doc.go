// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package control carries the operational surface of the runtime: typed
// configuration with environment overrides, a Prometheus metrics exporter
// for the api.Collector hook, a plain snapshot registry and debug probes.
package control
