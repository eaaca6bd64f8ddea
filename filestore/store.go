package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/isdmx/matlab-mcp/config"
)

// File permission constants
const (
	DirPermission  = 0o755
	FilePermission = 0o644
)

// MaxNameLength matches MATLAB's namelengthmax.
const MaxNameLength = 63

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// keywords is the list returned by MATLAB's iskeyword.
var keywords = map[string]bool{
	"break": true, "case": true, "catch": true, "classdef": true,
	"continue": true, "else": true, "elseif": true, "end": true,
	"for": true, "function": true, "global": true, "if": true,
	"otherwise": true, "parfor": true, "persistent": true, "return": true,
	"spmd": true, "switch": true, "try": true, "while": true,
}

// Store validates, resolves and persists source files under one root.
type Store struct {
	logger *zap.Logger
	root   string
	ext    string
	fs     FileSystem

	// changed is set whenever files under root may differ from what the
	// engine last loaded.
	changed atomic.Bool
}

// StoreOption defines a functional option for Store
type StoreOption func(*Store)

// WithFileSystem sets the FileSystem for Store
func WithFileSystem(fs FileSystem) StoreOption {
	return func(s *Store) {
		s.fs = fs
	}
}

// New creates a Store rooted at root. ext is the default extension, e.g. ".m".
func New(logger *zap.Logger, root, ext string, opts ...StoreOption) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve managed root %s: %w", root, err)
	}

	s := &Store{
		logger: logger,
		root:   abs,
		ext:    ext,
		fs:     &RealFileSystem{},
	}
	s.changed.Store(true)

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// NewFromConfig creates a Store from the files section of the config
func NewFromConfig(logger *zap.Logger, cfg *config.Config) (*Store, error) {
	return New(logger, cfg.Files.Root, cfg.Files.Extension)
}

// Root returns the absolute managed root.
func (s *Store) Root() string {
	return s.root
}

// Extension returns the default file extension.
func (s *Store) Extension() string {
	return s.ext
}

// ValidateName checks that name is a loadable MATLAB identifier and returns
// it unchanged.
func (s *Store) ValidateName(name string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name must not be empty", ErrInvalidIdentifier)
	case len(name) > MaxNameLength:
		return "", fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidIdentifier, name, MaxNameLength)
	case !identifierPattern.MatchString(name):
		return "", fmt.Errorf("%w: %q must start with a letter and contain only letters, digits and underscores", ErrInvalidIdentifier, name)
	case keywords[name]:
		return "", fmt.Errorf("%w: %q is a reserved MATLAB keyword", ErrInvalidIdentifier, name)
	}
	return name, nil
}

// ResolvePath maps name to an absolute path under the root, creating the
// root if it is missing. An empty ext selects the default extension; name
// may also carry the default extension itself.
func (s *Store) ResolvePath(name, ext string) (string, error) {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q must not contain path separators or '..'", ErrInvalidIdentifier, name)
	}

	if ext == "" {
		ext = s.ext
	}
	if ext != s.ext {
		return "", fmt.Errorf("%w: extension %q is not supported, use %q", ErrInvalidIdentifier, ext, s.ext)
	}
	name = strings.TrimSuffix(name, s.ext)

	if _, err := s.ValidateName(name); err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(s.root, DirPermission); err != nil {
		return "", fmt.Errorf("%w: creating managed root %s: %v", ErrIOFailure, s.root, err)
	}

	return filepath.Join(s.root, name+ext), nil
}

// NameOf returns the MATLAB name for a resolved path.
func (s *Store) NameOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), s.ext)
}

// Write stores content at path, overwriting any previous content.
func (s *Store) Write(path, content string) error {
	if err := s.contain(path); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), DirPermission); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrIOFailure, filepath.Dir(path), err)
	}
	if err := s.fs.WriteFile(path, []byte(content), FilePermission); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrIOFailure, path, err)
	}

	s.MarkChanged()
	s.logger.Debug("file written", zap.String("path", path), zap.Int("bytes", len(content)))
	return nil
}

// Read returns the content stored at path.
func (s *Store) Read(path string) (string, error) {
	if err := s.contain(path); err != nil {
		return "", err
	}
	data, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrIOFailure, path, err)
	}
	return string(data), nil
}

// Exists reports whether a regular file exists at path.
func (s *Store) Exists(path string) (bool, error) {
	if err := s.contain(path); err != nil {
		return false, err
	}
	ok, err := s.fs.FileExists(path)
	if err != nil {
		return false, fmt.Errorf("%w: checking %s: %v", ErrIOFailure, path, err)
	}
	return ok, nil
}

// List returns the names of all managed files, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := s.fs.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrIOFailure, s.root, err)
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != s.ext {
			continue
		}
		name := strings.TrimSuffix(e.Name(), s.ext)
		if _, err := s.ValidateName(name); err == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// MarkChanged records that the engine may hold stale definitions.
func (s *Store) MarkChanged() {
	s.changed.Store(true)
}

// TakeChanged reports whether files changed since the last call and
// clears the flag.
func (s *Store) TakeChanged() bool {
	return s.changed.Swap(false)
}

func (s *Store) contain(path string) error {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside the managed root", ErrInvalidIdentifier, path)
	}
	return nil
}
