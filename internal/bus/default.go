package bus

import (
	"sync"

	"github.com/xkilldash9x/actiongate/internal/config"
	"go.uber.org/zap"
)

var (
	defaultMu  sync.Mutex
	defaultBus *Bus
)

// Init creates the process-wide bus, or returns it if it already exists.
// Components should be handed the returned *Bus rather than look it up.
func Init(cfg config.BusConfig, logger *zap.Logger) *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBus == nil {
		defaultBus = New(cfg, logger)
	}
	return defaultBus
}

// Instance returns the process-wide bus, or ErrNotInitialized before Init.
func Instance() (*Bus, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBus == nil {
		return nil, ErrNotInitialized
	}
	return defaultBus, nil
}

// ResetForTest closes and forgets the process-wide bus.
// This function should ONLY be used in tests.
func ResetForTest() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBus != nil {
		defaultBus.Close()
		defaultBus = nil
	}
}
