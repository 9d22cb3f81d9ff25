package featureflag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileDoc is the on-disk shape of the flag file:
//
//	flags:
//	  - name: platform.use-runtime-secret-persistence
//	    serve: false
//	    context:
//	      - type: organization
//	        include: [<org-id>]
//	        serve: true
type fileDoc struct {
	Flags []fileFlag `yaml:"flags"`
}

type fileFlag struct {
	Name    string        `yaml:"name"`
	Serve   bool          `yaml:"serve"`
	Context []fileContext `yaml:"context"`
}

type fileContext struct {
	Type    string   `yaml:"type"`
	Include []string `yaml:"include"`
	Serve   bool     `yaml:"serve"`
}

type rule struct {
	serve   bool
	include map[string]bool
}

type flagDef struct {
	serve bool
	rules map[string]rule
}

// FileClient serves flags from a YAML file. Context rules win over the flag's
// base value; flags missing from the file serve their default.
type FileClient struct {
	path string

	mu    sync.RWMutex
	flags map[string]flagDef
}

// NewFileClient loads the flag file at path.
func NewFileClient(path string) (*FileClient, error) {
	c := &FileClient{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the flag file. On error the previous flags stay in effect.
func (c *FileClient) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read flag file: %w", err)
	}
	flags, err := parseFlags(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.flags = flags
	c.mu.Unlock()
	return nil
}

func parseFlags(data []byte) (map[string]flagDef, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flag file: %w", err)
	}

	flags := make(map[string]flagDef, len(doc.Flags))
	for _, f := range doc.Flags {
		if f.Name == "" {
			return nil, fmt.Errorf("flag without name in flag file")
		}
		def := flagDef{serve: f.Serve, rules: make(map[string]rule)}
		for _, fc := range f.Context {
			r := rule{serve: fc.Serve, include: make(map[string]bool, len(fc.Include))}
			for _, id := range fc.Include {
				r.include[id] = true
			}
			def.rules[fc.Type] = r
		}
		flags[f.Name] = def
	}
	return flags, nil
}

// Enabled applies the rule of the first context that matches one, so callers
// pass their most specific context first.
func (c *FileClient) Enabled(flag Flag, contexts ...Context) bool {
	c.mu.RLock()
	def, ok := c.flags[flag.Key]
	c.mu.RUnlock()
	if !ok {
		return flag.Default
	}
	for _, fc := range contexts {
		if r, ok := def.rules[fc.Kind]; ok && r.include[fc.Key] {
			return r.serve
		}
	}
	return def.serve
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file are picked up.
func (c *FileClient) Watch(ctx context.Context, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("failed to watch flag file: %w", err)
	}
	target := filepath.Clean(c.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				err := c.Reload()
				if onReload != nil {
					onReload(err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onReload != nil {
				onReload(err)
			}
		}
	}
}
