package session

import "time"

// DefaultTimeout bounds every blocking step of a session: socket reads and
// writes, the join handshake and registry lock acquisition.
const DefaultTimeout = 10 * time.Second

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport/session reliability defaults.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	LockTimeout      time.Duration
	CloseTimeout     time.Duration
	// HeartbeatInterval is how often an idle server link sends a heartbeat.
	HeartbeatInterval time.Duration
	// SessionDeadAfter is the read deadline on an established session.
	SessionDeadAfter time.Duration
	// OutboundQueue is the per-link packet buffer on the server.
	OutboundQueue int
	Backoff       BackoffConfig
}

// DefaultConfig derives every timeout from DefaultTimeout.
func DefaultConfig() Config {
	return FromTimeout(DefaultTimeout)
}

// FromTimeout builds a config from one shared timeout value.
func FromTimeout(d time.Duration) Config {
	if d <= 0 {
		d = DefaultTimeout
	}
	return Config{
		ConnectTimeout:    d,
		HandshakeTimeout:  d,
		WriteTimeout:      d,
		LockTimeout:       d,
		CloseTimeout:      d,
		HeartbeatInterval: d / 2,
		SessionDeadAfter:  d + d/2,
		OutboundQueue:     64,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = def.LockTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = def.CloseTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.SessionDeadAfter <= 0 {
		c.SessionDeadAfter = def.SessionDeadAfter
	}
	if c.SessionDeadAfter <= c.HeartbeatInterval {
		c.SessionDeadAfter = 3 * c.HeartbeatInterval
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = def.OutboundQueue
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
