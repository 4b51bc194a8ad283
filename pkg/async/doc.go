// Package async runs fire-and-forget work, such as contact notification
// mail, outside the request goroutine without leaking panics or
// goroutines past shutdown.
package async
