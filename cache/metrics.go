package cache

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                     {}
func (NoopMetrics) Miss()                    {}
func (NoopMetrics) Evict(EvictReason)        {}
func (NoopMetrics) Size(entries, groups int) {}
func (NoopMetrics) Sweep(time.Duration)      {}

var _ Metrics = NoopMetrics{}
