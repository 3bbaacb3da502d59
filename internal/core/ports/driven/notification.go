package driven

import "context"

// NotificationSource exposes the channel an external collaborator uses to
// announce the most recently delivered document.
type NotificationSource interface {
	// Read returns the current notification value: the absolute path of the
	// latest document. A missing notification returns domain.ErrNotFound.
	Read(ctx context.Context) (string, error)

	// Changes delivers a hint whenever the notification may have changed.
	// It may return nil if the source only supports polling.
	Changes() <-chan struct{}

	// Close releases resources.
	Close() error
}
