package supplier

import (
	"errors"
	"fmt"

	"github.com/okian/hydropool/internal/domain/pool"
)

// Sentinel errors for this package.
var (
	ErrPoolBuild     = errors.New("pool build failed")
	ErrClimatology   = errors.New("climatology unavailable")
	ErrConfiguration = errors.New("invalid supplier configuration")
)

// PoolError carries the request whose pool failed to build.
type PoolError struct {
	Request pool.Request
	Err     error
}

func (e *PoolError) Error() string {
	m := e.Request.Metadata
	return fmt.Sprintf("pool %d group=%s window=%s: %v", e.Request.ID, m.Group, m.Window, e.Err)
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPoolBuild.
func (e *PoolError) Is(target error) bool { return target == ErrPoolBuild }
