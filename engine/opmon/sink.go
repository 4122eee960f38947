package opmon

import (
	"sync"
	"time"
)

// Sink receives runtime metrics, the core reports through it without knowing the backend
type Sink interface {
	ObserveOperation(name string, d time.Duration)
	ObserveLatency(scope string, ms float64)
	ObserveBandwidth(scope string, in, out float64)
	SetGauge(name string, v float64)
}

var (
	sinkLock sync.RWMutex
	sink     Sink = nopSink{}
)

// SetSink replaces the metrics sink, nil restores the no-op sink
func SetSink(s Sink) {
	if s == nil {
		s = nopSink{}
	}
	sinkLock.Lock()
	sink = s
	sinkLock.Unlock()
}

// GetSink returns the metrics sink
func GetSink() Sink {
	sinkLock.RLock()
	defer sinkLock.RUnlock()
	return sink
}

func sinkObserveOperation(name string, d time.Duration) {
	GetSink().ObserveOperation(name, d)
}

type nopSink struct{}

func (nopSink) ObserveOperation(name string, d time.Duration)  {}
func (nopSink) ObserveLatency(scope string, ms float64)        {}
func (nopSink) ObserveBandwidth(scope string, in, out float64) {}
func (nopSink) SetGauge(name string, v float64)                {}
