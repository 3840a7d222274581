// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package transport maps typed socket operations into one-shot reactor
// registrations. On readiness the actual system call runs and its outcome
// is re-posted to the loop as a completion handler. Unix platforms only.
package transport
