package transport

import (
	"time"
)

// BreakerSettings configures the circuit breaker in front of backend calls
type BreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// Ratio of failed calls that opens the breaker once MinRequests is reached
	FailureThreshold float64
	MinRequests      uint32
}

// Settings holds everything the gRPC client needs to reach the backend
type Settings struct {
	Target          string
	Insecure        bool
	DialTimeout     time.Duration
	CallTimeout     time.Duration
	ProbeTimeout    time.Duration
	MaxRecvMsgBytes int
	Breaker         BreakerSettings
}

// DefaultBreakerSettings returns breaker defaults for a named backend
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// DefaultSettings returns settings for a local development backend
func DefaultSettings() Settings {
	return Settings{
		Target:          "localhost:50051",
		Insecure:        true,
		DialTimeout:     5 * time.Second,
		CallTimeout:     30 * time.Second,
		ProbeTimeout:    3 * time.Second,
		MaxRecvMsgBytes: 16 << 20,
		Breaker:         DefaultBreakerSettings("backend"),
	}
}
