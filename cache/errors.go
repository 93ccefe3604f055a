package cache

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidArgument is returned, before any mutation, for a nil key,
	// a non-positive lifetime, a nil factory, or a negative ScanInterval.
	ErrInvalidArgument = errors.New("cache: invalid argument")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("cache: closed")

	// ErrFactoryFailed marks errors produced by a value factory. The failure
	// is cached on its entry and returned to every reader until the entry
	// expires or is removed. The factory's own error stays reachable through
	// errors.Is / errors.As.
	ErrFactoryFailed = errors.New("cache: value factory failed")
)

func factoryError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, "cache: value factory failed"), ErrFactoryFailed)
}
