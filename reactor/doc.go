// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the core readiness-notification abstraction and
// cross-platform implementations for epoll (Linux), kqueue (BSD/darwin),
// poll (other Unix) and IOCP (Windows). Every backend reserves an internal
// wakeup channel so a blocking wait can be interrupted from another
// goroutine.
package reactor
