package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure NotificationFile implements the interface.
var _ driven.NotificationSource = (*NotificationFile)(nil)

// NotificationFile reads the path of the latest delivered document from a
// small text file. When watching, writes to the file are forwarded as
// change hints; the caller still polls, so a failed watch only delays
// detection until the next tick.
type NotificationFile struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewNotificationFile creates a source reading path. With watch set, the
// parent directory is watched so the file may be created after startup.
func NewNotificationFile(path string, watch bool) (*NotificationFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve notification path: %w", err)
	}
	n := &NotificationFile{
		path: abs,
		done: make(chan struct{}),
	}
	if !watch {
		return n, nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("create notification dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("notification: watch unavailable, polling only: %v", err)
		return n, nil
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		logger.Warn("notification: cannot watch %s, polling only: %v", filepath.Dir(abs), err)
		return n, nil
	}

	n.watcher = watcher
	n.changes = make(chan struct{}, 1)
	n.wg.Add(1)
	go n.watch()
	return n, nil
}

// Path returns the absolute path of the notification file.
func (n *NotificationFile) Path() string {
	return n.path
}

// Read returns the trimmed file content. A missing or blank file returns
// domain.ErrNotFound.
func (n *NotificationFile) Read(_ context.Context) (string, error) {
	data, err := os.ReadFile(n.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("read notification: %w", err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", domain.ErrNotFound
	}
	return value, nil
}

// Changes returns the change hint channel, or nil when not watching.
func (n *NotificationFile) Changes() <-chan struct{} {
	if n.changes == nil {
		return nil
	}
	return n.changes
}

// Close stops watching.
func (n *NotificationFile) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		if n.watcher != nil {
			err = n.watcher.Close()
		}
		n.wg.Wait()
	})
	return err
}

func (n *NotificationFile) watch() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if n.handleEvent(event) {
				select {
				case n.changes <- struct{}{}:
				default:
				}
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			logger.Debug("notification: watch error: %v", err)
		}
	}
}

// handleEvent reports whether event may have changed the notification value.
func (n *NotificationFile) handleEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != n.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}

// WriteNotification atomically replaces the notification file at path with
// docPath. It is what a download mover does after placing a document.
func WriteNotification(path, docPath string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create notification dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".notify-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(docPath + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
