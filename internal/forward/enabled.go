package forward

import (
	"sync/atomic"

	"github.com/born-ml/forwardad/internal/envconfig"
)

var forwardADEnabled atomic.Bool

func init() {
	forwardADEnabled.Store(envconfig.ForwardAD())
}

// IsEnabled reports whether forward AD bookkeeping is switched on.
func IsEnabled() bool {
	return forwardADEnabled.Load()
}

// SetEnabled switches forward AD bookkeeping on or off for the whole process.
// It does not affect levels or gradients that already exist.
func SetEnabled(enabled bool) {
	forwardADEnabled.Store(enabled)
}
