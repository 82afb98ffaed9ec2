package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// stopFileName inside the workspace control directory. Creating it asks the
// running engine to stop; the engine rolls back the attempt in flight before
// returning.
const stopFileName = "stop"

// controlDir returns the workspace control directory path.
func controlDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".ticketsmith", "control")
}

// stopRequested reports whether a stop file already exists.
func stopRequested(workspaceRoot string) bool {
	_, err := os.Stat(filepath.Join(controlDir(workspaceRoot), stopFileName))
	return err == nil
}

// watchStop cancels the run when a stop file appears in the control
// directory. It returns a cleanup func. A watcher that cannot start is
// logged and ignored; the wall-clock timeout still bounds the run.
func watchStop(ctx context.Context, cancel context.CancelFunc, workspaceRoot string, log *DebugLogger) func() {
	dir := controlDir(workspaceRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Log("stop watcher disabled: %v", err)
		return func() {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Log("stop watcher disabled: %v", err)
		return func() {}
	}
	if err := watcher.Add(dir); err != nil {
		log.Log("stop watcher disabled: %v", err)
		watcher.Close()
		return func() {}
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == stopFileName &&
					ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					log.Log("stop requested via %s", ev.Name)
					cancel()
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() { watcher.Close() }
}
