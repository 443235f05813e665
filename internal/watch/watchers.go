/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package watch

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
)

// Signals returns a channel delivering the given signals.
func Signals(sigs ...os.Signal) chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)
	return sigChan
}

// Files watches the given files. The parent directories are watched rather
// than the files themselves, since atomic writers replace a file by renaming
// a new one over it.
func Files(files ...string) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating watcher")
	}
	names := sets.New[string]()
	dirs := sets.New[string]()
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = w.Close()
			return nil, errors.Wrapf(err, "resolving %s", f)
		}
		names.Insert(abs)
		dirs.Insert(filepath.Dir(abs))
	}
	for _, d := range sets.List(dirs) {
		if err := w.Add(d); err != nil {
			_ = w.Close()
			return nil, errors.Wrapf(err, "watching %s", d)
		}
	}
	return &FileWatcher{watcher: w, files: names}, nil
}

// FileWatcher reports changes to a fixed set of files.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	files   sets.Set[string]
}

// Close stops the watcher.
func (w *FileWatcher) Close() error {
	return w.watcher.Close()
}

// Run calls onChange with the path of every watched file that is written,
// created or renamed into place, until ctx is done or the watcher is closed.
// An error from onChange is logged and does not stop the loop.
func (w *FileWatcher) Run(ctx context.Context, onChange func(path string) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.files.Has(filepath.Clean(event.Name)) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			klog.V(2).InfoS("Watched file changed", "path", event.Name, "op", event.Op.String())
			if err := onChange(event.Name); err != nil {
				klog.ErrorS(err, "Handling file change failed", "path", event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			klog.ErrorS(err, "File watcher error")
		}
	}
}
