package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// allowListFile is the YAML layout of ALLOWED_EMAILS_FILE
type allowListFile struct {
	Emails []string `yaml:"emails"`
}

// AllowList holds the email addresses permitted to sign in. Entries come from
// a static list and an optional YAML file that is reloaded when it changes.
type AllowList struct {
	mu       sync.RWMutex
	static   map[string]struct{}
	fromFile map[string]struct{}
	path     string
}

// NewAllowList creates an allow-list. path may be empty.
func NewAllowList(emails []string, path string) (*AllowList, error) {
	a := &AllowList{static: toEmailSet(emails), fromFile: map[string]struct{}{}, path: path}
	if path != "" {
		if err := a.Reload(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Allowed reports whether email may sign in. Comparison ignores case.
func (a *AllowList) Allowed(email string) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.static[email]; ok {
		return true
	}
	_, ok := a.fromFile[email]
	return ok
}

// Len returns the number of distinct allowed addresses
func (a *AllowList) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := len(a.static)
	for email := range a.fromFile {
		if _, dup := a.static[email]; !dup {
			n++
		}
	}
	return n
}

// Reload re-reads the YAML file. On error the previous entries stay in effect.
func (a *AllowList) Reload() error {
	if a.path == "" {
		return nil
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("failed to read allow-list file: %w", err)
	}

	var file allowListFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse allow-list file: %w", err)
	}

	set := toEmailSet(file.Emails)
	a.mu.Lock()
	a.fromFile = set
	a.mu.Unlock()
	return nil
}

// Watch reloads the file on every write until ctx is done. The parent
// directory is watched so editors that replace the file are handled.
func (a *AllowList) Watch(ctx context.Context, log *logrus.Logger) error {
	if a.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(a.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", a.path, err)
	}

	target := filepath.Clean(a.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				if err := a.Reload(); err != nil {
					log.Warnf("⚠️ Allow-list reload failed: %v", err)
					continue
				}
				log.Infof("🔐 Allow-list reloaded (%d addresses)", a.Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("⚠️ Allow-list watcher error: %v", err)
			}
		}
	}()
	return nil
}

func toEmailSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
