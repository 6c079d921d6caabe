// Package control executes power and brightness commands against displays.
//
// DDC/CI buses are known to drop requests, so every hardware call is retried
// a bounded number of times with a linearly increasing delay. A permanent
// ErrUnsupported is never retried and marks the brightness capability as
// unsupported for the display's current bus binding. Running out of attempts
// marks the display unresponsive, which the agent publishes as unavailable.
package control
