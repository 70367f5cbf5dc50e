// Package classstore persists decoded DEX classes as content-addressed JSON
// files, one per class descriptor, so an installed extension survives
// across host process restarts without re-parsing its DEX container every
// time a method is invoked.
package classstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsrzf/mmap-go"

	"dexvm/dex"
)

// Store roots every persisted class and container under a single directory,
// matching the original installer's flat "out/" layout.
type Store struct {
	root string

	rawFile *os.File
	rawMmap mmap.MMap
}

// New returns a store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("classstore: create root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// pathForDescriptor strips the trailing ';' every DEX type descriptor ends
// with and roots the result under the store directory, e.g.
// "Lcom/example/Main;" -> "<root>/Lcom/example/Main".
func (s *Store) pathForDescriptor(descriptor string) string {
	trimmed := strings.TrimSuffix(descriptor, ";")
	return filepath.Join(s.root, filepath.FromSlash(trimmed))
}

// SaveClass persists one decoded class, creating any parent directories its
// descriptor implies (nested package names become nested directories).
func (s *Store) SaveClass(class dex.Class) error {
	path := s.pathForDescriptor(class.Descriptor)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("classstore: create parent dir for %s: %w", class.Descriptor, err)
	}
	data, err := json.Marshal(class)
	if err != nil {
		return fmt.Errorf("classstore: marshal %s: %w", class.Descriptor, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadClass reloads a previously persisted class by descriptor.
func (s *Store) LoadClass(descriptor string) (*dex.Class, error) {
	path := s.pathForDescriptor(descriptor)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classstore: read %s: %w", descriptor, err)
	}
	var class dex.Class
	if err := json.Unmarshal(data, &class); err != nil {
		return nil, fmt.Errorf("classstore: unmarshal %s: %w", descriptor, err)
	}
	return &class, nil
}

// InstallExtension decodes the raw DEX bytes and persists every class plus
// a copy of the full DEX file (container.data) and the string table
// alongside it, the way
// an installer that needs the extension available across process restarts
// would. It returns the decoded container and class list for immediate use
// by the caller without a second round trip through disk.
func (s *Store) InstallExtension(raw []byte) (*dex.Container, []dex.Class, error) {
	container, classes, err := dex.Parse(raw)
	if err != nil {
		return nil, nil, err
	}

	for _, class := range classes {
		if err := s.SaveClass(class); err != nil {
			return nil, nil, err
		}
	}

	if err := s.saveRawData(container); err != nil {
		return nil, nil, err
	}
	if err := s.saveStrings(container); err != nil {
		return nil, nil, err
	}

	return container, classes, nil
}

func (s *Store) saveRawData(container *dex.Container) error {
	path := filepath.Join(s.root, "container.data")
	return os.WriteFile(path, container.Data, 0o644)
}

func (s *Store) saveStrings(container *dex.Container) error {
	var b strings.Builder
	for idx := range container.StringIDs {
		str, err := container.String(uint32(idx))
		if err != nil {
			str = ""
		}
		b.WriteString(strings.ReplaceAll(str, "\n", "\\n"))
		b.WriteByte('\n')
	}
	path := filepath.Join(s.root, "container.strings")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// LoadRawData re-reads a previously installed extension's persisted DEX
// file bytes via a memory-mapped file rather than a full read into the Go heap — DEX
// files installed once and invoked repeatedly don't need to be copied into
// process memory on every load. The mapping is retained on the store (not
// copied and unmapped immediately) the way saferwall-pe's File keeps its
// mapped image alive for the object's lifetime; call Close to release it.
func (s *Store) LoadRawData() ([]byte, error) {
	if s.rawMmap != nil {
		return []byte(s.rawMmap), nil
	}

	path := filepath.Join(s.root, "container.data")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classstore: open %s: %w", path, err)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("classstore: mmap %s: %w", path, err)
	}

	s.rawFile = f
	s.rawMmap = m
	return []byte(m), nil
}

// Close releases the memory-mapped view LoadRawData holds open, if any.
func (s *Store) Close() error {
	if s.rawMmap != nil {
		if err := s.rawMmap.Unmap(); err != nil {
			return fmt.Errorf("classstore: unmap: %w", err)
		}
		s.rawMmap = nil
	}
	if s.rawFile != nil {
		err := s.rawFile.Close()
		s.rawFile = nil
		return err
	}
	return nil
}

// Loader adapts a Store to vm.ClassLoader: load-by-descriptor with a
// reload from disk on every call, matching the original source's
// round-trip contract (decode, persist, reload must agree structurally).
type Loader struct {
	*Store
}

// NewLoader wraps store as a vm.ClassLoader.
func NewLoader(store *Store) Loader {
	return Loader{Store: store}
}

// Load implements vm.ClassLoader.
func (l Loader) Load(descriptor string) (*dex.Class, error) {
	return l.LoadClass(descriptor)
}
