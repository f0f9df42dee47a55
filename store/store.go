package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrPathInvalid marks a path rejected by sanitization or the ignore set.
	ErrPathInvalid = errors.New("invalid path")
	// ErrNotFound marks a read of a file that does not exist (or is ignored).
	ErrNotFound = errors.New("file not found")
	// ErrAlreadyExists marks a create targeting an existing file.
	ErrAlreadyExists = errors.New("file already exists")
)

// BackupSuffix is appended to the prior contents of every updated file.
// Backups rotate: a second update overwrites the first backup.
const BackupSuffix = ".backup"

// Store owns a project directory and is its sole writer. All paths are
// project-relative; sanitization and the ignore set are enforced on every
// operation so agents can never touch system noise or escape the root.
type Store struct {
	root string
}

// New creates the project directory (and parents) and returns a Store
// rooted there.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute project directory.
func (s *Store) Root() string {
	return s.root
}

// resolve sanitizes a relative path and joins it under the root.
func (s *Store) resolve(path string) (rel, abs string, err error) {
	rel, err = SanitizePath(path)
	if err != nil {
		return "", "", err
	}
	if IgnoredPath(rel) {
		return "", "", fmt.Errorf("%w: %q is filtered", ErrPathInvalid, rel)
	}
	abs = filepath.Join(s.root, filepath.FromSlash(rel))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q escapes project root", ErrPathInvalid, rel)
	}
	return rel, abs, nil
}

// Create writes a new file. Fails with ErrAlreadyExists if the file is
// already present; use Update to overwrite with backup rotation.
func (s *Store) Create(path, content string) error {
	_, abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Update overwrites a file, first copying its current contents to
// <path>.backup. Updating a missing file behaves as Create.
func (s *Store) Update(path, content string) error {
	_, abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if prev, err := os.ReadFile(abs); err == nil {
		if err := os.WriteFile(abs+BackupSuffix, prev, 0644); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Read returns a file's contents. Ignored paths read as not found so a
// filtered file is indistinguishable from an absent one.
func (s *Store) Read(path string) (string, error) {
	rel, err := SanitizePath(path)
	if err != nil {
		return "", err
	}
	if IgnoredPath(rel) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	_, abs, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// Restore replaces a file with its backup, if one exists. Used by the
// TDD refactor phase to revert changes that broke passing tests.
func (s *Store) Restore(path string) error {
	_, abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	prev, err := os.ReadFile(abs + BackupSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: no backup for %s", ErrNotFound, path)
		}
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if err := os.WriteFile(abs, prev, 0644); err != nil {
		return fmt.Errorf("failed to restore file: %w", err)
	}
	return nil
}

// List returns all non-ignored regular files, project-relative, sorted
// lexicographically.
func (s *Store) List() ([]string, error) {
	var files []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if IgnoredPath(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list project files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ModTimeOrder returns the non-ignored files sorted most recently
// modified first. The iteration controller uses this to pick which file
// contents to embed in agent context.
func (s *Store) ModTimeOrder() ([]string, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	type stamped struct {
		path string
		mod  int64
	}
	stamps := make([]stamped, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(f)))
		if err != nil {
			continue
		}
		stamps = append(stamps, stamped{f, info.ModTime().UnixNano()})
	}
	sort.SliceStable(stamps, func(i, j int) bool { return stamps[i].mod > stamps[j].mod })
	out := make([]string, len(stamps))
	for i, st := range stamps {
		out[i] = st.path
	}
	return out, nil
}

// Structure renders a filtered, human-readable tree of the project for
// embedding in agent prompts.
func (s *Store) Structure() (string, error) {
	files, err := s.List()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "(empty project)", nil
	}

	var b strings.Builder
	b.WriteString(filepath.Base(s.root) + "/\n")
	seen := map[string]bool{}
	for _, f := range files {
		parts := strings.Split(f, "/")
		for depth := 0; depth < len(parts); depth++ {
			prefix := strings.Join(parts[:depth+1], "/")
			if seen[prefix] {
				continue
			}
			seen[prefix] = true
			b.WriteString(strings.Repeat("  ", depth+1))
			b.WriteString(parts[depth])
			if depth < len(parts)-1 {
				b.WriteString("/")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
