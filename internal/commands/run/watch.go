// Copyright 2026 The Gridrun Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package run

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gridrun/gridrun/internal/commands/shared"
)

// debounceWindow coalesces the event bursts editors produce on save.
const debounceWindow = 250 * time.Millisecond

// watchLoop runs the pipeline, then re-runs it whenever the file changes,
// until the context is canceled. Run failures are reported but do not end
// the loop; only a canceled context does.
func watchLoop(ctx context.Context, path string, env runEnv) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return shared.NewRunError("failed to start file watcher", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors that write via rename
	// replace the inode and a file watch would go stale.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return shared.NewRunError("failed to watch pipeline directory", err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return shared.NewRunError("failed to resolve pipeline path", err)
	}

	runAndReport(ctx, path, env)

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return &shared.ExitError{Code: shared.ExitCanceled, Message: "watch stopped"}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || abs != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			env.logger.Warn("watcher error", "error", err.Error())

		case <-pending:
			env.logger.Info("pipeline changed, re-running", "path", path)
			runAndReport(ctx, path, env)
		}
	}
}

// runAndReport executes once and logs the outcome instead of exiting, so a
// broken edit does not kill the watch session.
func runAndReport(ctx context.Context, path string, env runEnv) {
	err := executeOnce(ctx, path, env)
	if err == nil {
		return
	}

	var exitErr *shared.ExitError
	if errors.As(err, &exitErr) && exitErr.Code == shared.ExitCanceled {
		return
	}
	env.logger.Error("run failed", "error", err.Error())
}
