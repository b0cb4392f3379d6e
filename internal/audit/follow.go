package audit

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Follow watches the audit file and calls the callback for each new
// entry as it is appended, like `tail -f`. Blocks until the context is
// cancelled. Entries already in the log when Follow starts are not
// replayed.
func (l *Log) Follow(ctx context.Context, callback func(Entry)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory rather than the file so the watch survives
	// the file being created after Follow starts.
	if err := fw.Add(l.dir); err != nil {
		return err
	}

	l.mu.Lock()
	lastSeen := int64(l.nextIndex) - 1
	l.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			entries, err := readEntriesFromFile(l.path)
			if err != nil {
				slog.Error("follow: error reading entries", "error", err)
				continue
			}
			for _, e := range entries {
				if int64(e.Index) > lastSeen {
					callback(e)
					lastSeen = int64(e.Index)
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("follow: watcher error", "error", err)
		}
	}
}
