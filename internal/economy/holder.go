package economy

import "sync/atomic"

// Holder publishes the active Config. Readers take one snapshot per
// operation with Current and never see a partially applied update.
type Holder struct {
	current atomic.Pointer[Config]
}

func NewHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

func (h *Holder) Current() *Config {
	return h.current.Load()
}

// SwapIfNewer installs cfg only when its version is above the current one.
func (h *Holder) SwapIfNewer(cfg *Config) bool {
	for {
		old := h.current.Load()
		if old != nil && cfg.Version <= old.Version {
			return false
		}
		if h.current.CompareAndSwap(old, cfg) {
			return true
		}
	}
}
