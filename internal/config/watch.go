package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "weekgrid/internal/log"
)

const reloadDebounce = 200 * time.Millisecond

// Watch calls onChange with the freshly loaded config whenever the file at
// path is written or replaced, until ctx is done. Unreadable or malformed
// versions are logged and ignored, leaving the running config in place.
//
// The parent directory is watched rather than the file itself: Save and most
// editors replace the file by rename, which drops a file-level watch.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			cfg, err := read(path)
			if err != nil {
				appLog.Warn("config reload skipped", "path", path, "err", err.Error())
				continue
			}
			appLog.Info("config reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			appLog.Warn("config watch error", "err", err.Error())
		}
	}
}
