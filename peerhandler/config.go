package peerhandler

import "time"

// Config holds the per-peer handler's own timers. These should generally
// be kept in sync with the corresponding session.Config fields, since the
// keep-alive timeout and the stats sampling window are meaningful to both
// sides of the same connection.
type Config struct {
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	StatsInterval     time.Duration `yaml:"stats_interval"`
}

func (c Config) applyDefaults() Config {
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 120 * time.Second
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = 10 * time.Second
	}
	return c
}
