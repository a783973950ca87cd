package hostconfig

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 200 * time.Millisecond

// Watch notifies ch each time the host config file changes on disk, debounced
// so editors that write in multiple steps produce a single notification. It
// blocks until ctx is done. Sends are non-blocking; a consumer that lags
// simply coalesces changes.
func (a *Adapter) Watch(ctx context.Context, ch chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// watch the directory, not the file: editors replace files via rename and
	// the inode-level watch would silently go stale
	if err := watcher.Add(filepath.Dir(a.path)); err != nil {
		return err
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watcher.Errors:
			if err != nil {
				a.logger.Warn("host config watcher error", zap.Error(err))
			}
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(a.path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(watchDebounce)
		case <-timerChan(timer):
			timer = nil
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
