// Package bridge is the host-facing façade over the DEX interpreter: the
// handful of operations an embedding process actually calls (install an
// extension, ask its name, ask whether its declared user agent matches,
// invoke an arbitrary method on it) without the caller ever touching a
// Container, Class, or Executor directly.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"dexvm/dex"
	"dexvm/dex/classstore"
	"dexvm/vm"
)

// ErrNoMainClass is returned when an installed extension declares no class
// whose superclass descriptor marks it as the entry point.
var ErrNoMainClass = errors.New("bridge: no main class found")

// mainClassMarker is the substring every extension's entry-point
// superclass descriptor is expected to contain.
const mainClassMarker = "Source"

// Bridge owns one installed extension's decoded state and the executor
// that runs its methods.
type Bridge struct {
	store     *classstore.Store
	loader    classstore.Loader
	out       io.Writer
	exec      *vm.Executor
	container *dex.Container
	classes   []dex.Class
	mainDesc  string
}

// New opens (creating if necessary) a class store rooted at dir. Trace
// output is written to out when debug mode is enabled.
func New(dir string, out io.Writer) (*Bridge, error) {
	store, err := classstore.New(dir)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &Bridge{
		store:  store,
		loader: classstore.NewLoader(store),
		out:    out,
	}, nil
}

// Init creates the bridge's executor if none exists yet and sets its debug
// flag. It registers no host receivers (RegisterReceiver does that). It is
// idempotent: calling it again keeps the existing executor and only updates
// the flag.
func (b *Bridge) Init(debug bool) {
	if b.exec == nil {
		b.exec = vm.NewExecutor(b.container, b.loader, b.out)
	}
	b.exec.Debug = debug
}

// SetDebug toggles instruction-level tracing on the underlying executor.
func (b *Bridge) SetDebug(debug bool) {
	if b.exec != nil {
		b.exec.Debug = debug
	}
}

// InstallExtension decodes raw DEX bytes, persists every class to the
// store, and makes them available for the rest of the bridge's operations.
func (b *Bridge) InstallExtension(raw []byte) error {
	container, classes, err := b.store.InstallExtension(raw)
	if err != nil {
		return fmt.Errorf("bridge: install extension: %w", err)
	}
	b.container = container
	b.classes = classes
	b.exec = vm.NewExecutor(container, b.loader, b.out)

	main, ok := findMainClass(classes)
	if !ok {
		return ErrNoMainClass
	}
	b.mainDesc = main.Descriptor
	return nil
}

// Load re-opens a previously installed extension from the store, without
// the caller supplying the raw DEX bytes again: the copy of the DEX file
// persisted at install time is mapped back in and re-parsed.
func (b *Bridge) Load() error {
	raw, err := b.store.LoadRawData()
	if err != nil {
		return fmt.Errorf("bridge: load: %w", err)
	}
	container, classes, err := dex.Parse(raw)
	if err != nil {
		return fmt.Errorf("bridge: load: %w", err)
	}
	b.container = container
	b.classes = classes
	b.exec = vm.NewExecutor(container, b.loader, b.out)

	main, ok := findMainClass(classes)
	if !ok {
		return ErrNoMainClass
	}
	b.mainDesc = main.Descriptor
	return nil
}

func findMainClass(classes []dex.Class) (dex.Class, bool) {
	for _, c := range classes {
		if strings.Contains(c.SuperclassDesc, mainClassMarker) {
			return c, true
		}
	}
	return dex.Class{}, false
}

// GetDexVersion reports the installed extension's DEX format version, e.g.
// "v038", read straight from the header's magic bytes.
func (b *Bridge) GetDexVersion() string {
	if b.container == nil {
		return ""
	}
	return "v" + b.container.Header.Version()
}

// HostContext is the opaque value the embedding process supplies to an
// extension's constructor; its shape is entirely up to the host.
type HostContext struct {
	Data any
}

// ExtensionGetName relabels the object at heap id 1 — the self object every
// invocation prelude plants — as an instance of the main class, constructs
// it by running <init> with ctx as its sole argument, and returns the
// result of calling its getName method. ctx itself is not stored on the
// heap object; it reaches the instance only through <init>'s argument. The
// callee observes its receiver through the self sentinel, not through a
// second constructor argument.
func (b *Bridge) ExtensionGetName(ctx HostContext) (string, error) {
	if b.mainDesc == "" {
		return "", ErrNoMainClass
	}
	if self := b.exec.Heap.Get(vm.SelfObject); self != nil {
		self.ClassName = b.mainDesc
	}

	if _, err := b.exec.Run(b.mainDesc, "<init>", []vm.Value{vm.Host(ctx.Data)}); err != nil {
		return "", fmt.Errorf("bridge: construct %s: %w", b.mainDesc, err)
	}

	result, err := b.exec.Run(b.mainDesc, "getName", nil)
	if err != nil {
		return "", fmt.Errorf("bridge: getName: %w", err)
	}
	return result.Str, nil
}

// ExtensionIsUserAgentEqual invokes the main class's isCorrectUserAgent
// method and returns its boolean result.
func (b *Bridge) ExtensionIsUserAgentEqual() (bool, error) {
	if b.mainDesc == "" {
		return false, ErrNoMainClass
	}
	result, err := b.exec.Run(b.mainDesc, "isCorrectUserAgent", nil)
	if err != nil {
		return false, fmt.Errorf("bridge: isCorrectUserAgent: %w", err)
	}
	return result.Truthy(), nil
}

// ExtensionCallMethod invokes an arbitrary named method on the main class
// and reports its result as a string for display, without the caller
// needing to know the method's declared return type ahead of time.
func (b *Bridge) ExtensionCallMethod(name string) (string, error) {
	if b.mainDesc == "" {
		return "", ErrNoMainClass
	}
	result, err := b.exec.Run(b.mainDesc, name, nil)
	if err != nil {
		return "", fmt.Errorf("bridge: %s: %w", name, err)
	}
	return result.String(), nil
}

// Classes returns every class decoded from the installed extension.
func (b *Bridge) Classes() []dex.Class {
	return b.classes
}

// MainDescriptor returns the installed extension's entry-point class
// descriptor, or "" if none is installed yet.
func (b *Bridge) MainDescriptor() string {
	return b.mainDesc
}

// Executor returns the underlying interpreter, for callers (the debug
// stepper) that need lower-level access than the façade methods give.
func (b *Bridge) Executor() *vm.Executor {
	return b.exec
}

// RegisterReceiver installs a host-provided implementation of a method
// signature that invoke-interface should try before falling back to any
// inline native method an object carries.
func (b *Bridge) RegisterReceiver(recv vm.HostReceiver) {
	if b.exec != nil {
		b.exec.Receivers.Register(recv)
	}
}
