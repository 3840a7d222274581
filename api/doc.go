// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package api defines the shared contracts of the hioload-async runtime:
// handler shapes, the executor capability, the metrics collector hook and
// structured errors. Leaf packages depend on api only, never on each other.
package api
