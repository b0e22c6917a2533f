package rdpcsc

import "fmt"

// Enumerator lists attached readers with a short-lived PC/SC context.
type Enumerator struct {
	factory ContextFactory
}

// NewEnumerator is an initialization of Enumerator.
func NewEnumerator(factory ContextFactory) *Enumerator {
	return &Enumerator{factory: factory}
}

// ListReaders returns names of all attached readers, the result is empty if
// there are no readers.
func (e *Enumerator) ListReaders() ([]string, error) {
	ctx, err := e.factory()
	if err != nil {
		return nil, fmt.Errorf("pcsc-enumerator: failed to establish context: %w", err)
	}
	defer func() {
		_ = ctx.Release()
	}()

	readers, err := listReaders(ctx)
	if err != nil {
		return nil, fmt.Errorf("pcsc-enumerator: failed to list readers: %w", err)
	}

	return readers, nil
}
