// File: internal/browser/session/context_utils.go
package session

import "context"

// combineContext derives a context from primary (which carries the CDP
// target information) that is additionally canceled when secondary ends.
// chromedp actions must run on the target context, but callers hand us their
// own operational context; this links the two lifecycles.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
