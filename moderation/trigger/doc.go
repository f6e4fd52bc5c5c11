// Debounces detection passes requested from user-action handlers: at most one pass is scheduled per interval, and it runs off the caller's goroutine.
package trigger
