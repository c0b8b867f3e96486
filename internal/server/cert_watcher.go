package server

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"cvtailor/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// CertWatcher watches certificate files for changes and triggers reloads
type CertWatcher struct {
	mu sync.Mutex

	files       []string
	lastModTime map[string]time.Time

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}

	reloadCallback func()
	logger         *errors.Logger

	running bool
}

// NewCertWatcher creates a watcher for files. Empty paths are ignored.
func NewCertWatcher(files []string, debounceDelay time.Duration, reloadCallback func(), logger *errors.Logger) (*CertWatcher, error) {
	if reloadCallback == nil {
		return nil, fmt.Errorf("certificate watcher needs a reload callback")
	}
	if debounceDelay <= 0 {
		debounceDelay = time.Second
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	watched := make([]string, 0, len(files))
	for _, f := range files {
		if f != "" {
			watched = append(watched, filepath.Clean(f))
		}
	}
	if len(watched) == 0 {
		return nil, fmt.Errorf("no certificate files to watch")
	}

	return &CertWatcher{
		files:          watched,
		lastModTime:    make(map[string]time.Time),
		debounceDelay:  debounceDelay,
		stopChan:       make(chan struct{}),
		reloadChan:     make(chan struct{}, 1),
		reloadCallback: reloadCallback,
		logger:         logger,
	}, nil
}

// Start begins watching certificate files for changes
func (cw *CertWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return fmt.Errorf("certificate watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	cw.fsWatcher = watcher
	cw.updateModTimes()

	// Directories are watched so atomic replacements (write then rename) are seen.
	dirs := make([]string, 0, len(cw.files))
	for _, file := range cw.files {
		dir := filepath.Dir(file)
		if slices.Contains(dirs, dir) {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		dirs = append(dirs, dir)
	}

	cw.running = true
	go cw.watchLoop(watcher)

	cw.logger.Info("Certificate file watcher started",
		"files", cw.files,
		"debounce_delay", cw.debounceDelay)
	return nil
}

// Stop stops the certificate file watcher
func (cw *CertWatcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.running {
		return nil
	}
	close(cw.stopChan)
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.running = false

	if err := cw.fsWatcher.Close(); err != nil {
		return fmt.Errorf("failed to close file system watcher: %w", err)
	}
	cw.logger.Info("Certificate file watcher stopped")
	return nil
}

// updateModTimes records the current modification times. Callers hold cw.mu.
func (cw *CertWatcher) updateModTimes() {
	for _, file := range cw.files {
		if stat, err := os.Stat(file); err == nil {
			cw.lastModTime[file] = stat.ModTime()
		}
	}
}

// hasFileChanged checks if a file was modified or removed since the last check. Callers hold cw.mu.
func (cw *CertWatcher) hasFileChanged(file string) bool {
	stat, err := os.Stat(file)
	if err != nil {
		if _, exists := cw.lastModTime[file]; exists && os.IsNotExist(err) {
			delete(cw.lastModTime, file)
			return true
		}
		return false
	}

	lastMod, exists := cw.lastModTime[file]
	if !exists || !stat.ModTime().Equal(lastMod) {
		cw.lastModTime[file] = stat.ModTime()
		return true
	}
	return false
}

func (cw *CertWatcher) hasAnyFileChanged() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	changed := false
	for _, file := range cw.files {
		// Every file is checked so all modification times are refreshed.
		if cw.hasFileChanged(file) {
			changed = true
		}
	}
	return changed
}

func (cw *CertWatcher) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if cw.shouldProcessEvent(event) {
				cw.scheduleReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			cw.logger.LogError(err, "File watcher error")

		case <-cw.reloadChan:
			if cw.hasAnyFileChanged() {
				cw.logger.Info("Certificate files changed, triggering reload")
				cw.reloadCallback()
			}

		case <-cw.stopChan:
			return
		}
	}
}

// shouldProcessEvent reports whether event touches a watched file
func (cw *CertWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if !slices.Contains(cw.files, filepath.Clean(event.Name)) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

// scheduleReload schedules a debounced reload
func (cw *CertWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.running {
		return
	}
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debounceDelay, func() {
		select {
		case cw.reloadChan <- struct{}{}:
		default:
		}
	})
}

// IsRunning returns whether the watcher is currently running
func (cw *CertWatcher) IsRunning() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.running
}

// WatchedFiles returns the list of files being watched
func (cw *CertWatcher) WatchedFiles() []string {
	return slices.Clone(cw.files)
}
