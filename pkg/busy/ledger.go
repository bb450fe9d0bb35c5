// Package busy tracks which packages have an install batch in flight,
// in this process and, when the platform supports it, across installers.
package busy

import (
	stderrors "errors"
	"slices"
	"sync"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/platform"
)

// Ledger is safe for concurrent use.
type Ledger struct {
	registrar platform.BusyRegistrar

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewLedger creates a ledger. registrar may be nil.
func NewLedger(registrar platform.BusyRegistrar) *Ledger {
	return &Ledger{registrar: registrar, reserved: make(map[string]struct{})}
}

// Reserve marks names busy. It fails with *errors.PackagesBusyError when
// any of them is already reserved, and reserves nothing in that case.
// release must be called exactly once; further calls are no-ops.
func (l *Ledger) Reserve(names []string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var busy []string
	for _, n := range names {
		if _, ok := l.reserved[n]; ok {
			busy = append(busy, n)
		}
	}
	if len(busy) > 0 {
		return nil, &errors.PackagesBusyError{PackageNames: busy}
	}

	external := l.registrar != nil
	if external {
		conflicts, err := l.registrar.Acquire(names)
		switch {
		case stderrors.Is(err, platform.ErrUnsupported):
			external = false
		case err != nil:
			return nil, errors.Wrap(err, "register busy packages")
		case len(conflicts) > 0:
			slices.Sort(conflicts)
			return nil, &errors.PackagesBusyError{PackageNames: conflicts}
		}
	}

	for _, n := range names {
		l.reserved[n] = struct{}{}
	}
	names = slices.Clone(names)

	var once sync.Once
	return func() {
		once.Do(func() { l.release(names, external) })
	}, nil
}

func (l *Ledger) release(names []string, external bool) {
	l.mu.Lock()
	for _, n := range names {
		delete(l.reserved, n)
	}
	l.mu.Unlock()

	if external {
		if err := l.registrar.Release(names); err != nil {
			logger.Warn("Unable to release busy packages", logger.Fields{"packages": names, "error": err.Error()})
		}
	}
}

// IsBusy reports whether name is reserved in this process.
func (l *Ledger) IsBusy(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.reserved[name]
	return ok
}
