package stubservice

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches the port the hosted service uses in development.
	DefaultPort = 8000
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout must outlast Latency.
	DefaultWriteTimeout = 5 * time.Minute
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the stub generation service.
type Settings struct {
	Host         string        `env:"ROLE2_STUB_HOST"`
	Port         int           `env:"ROLE2_STUB_PORT"`
	MaxBodyBytes int64         `env:"ROLE2_STUB_MAX_BODY_BYTES"`
	ReadTimeout  time.Duration `env:"ROLE2_STUB_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"ROLE2_STUB_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `env:"ROLE2_STUB_IDLE_TIMEOUT"`
	// Latency delays every generation call to mimic the hosted service.
	Latency time.Duration `env:"ROLE2_STUB_LATENCY"`
	// Quota is the number of packages the stub generates before answering
	// 429 "quota exceeded". Zero means unlimited.
	Quota int `env:"ROLE2_STUB_QUOTA"`
}

// DefaultSettings returns loopback settings with no latency or quota.
func DefaultSettings() Settings {
	s := Settings{}
	s.normalize()
	return s
}

// SettingsFromEnv starts from the defaults and applies ROLE2_STUB_* overrides.
func SettingsFromEnv() (Settings, error) {
	s := Settings{}
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("stubservice: parse env: %w", err)
	}
	s.normalize()
	return s, nil
}

// ParseAddress applies a host:port flag value.
func (s *Settings) ParseAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("stubservice: invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || !isValidPort(port) {
		return fmt.Errorf("stubservice: invalid port in %q", addr)
	}
	if host != "" {
		s.Host = host
	}
	s.Port = port
	return nil
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if !isValidPort(s.Port) {
		s.Port = DefaultPort
	}
	s.applyLimits()
}

// applyLimits fills zero limits. The address is left as given; port 0 binds
// an ephemeral port.
func (s *Settings) applyLimits() {
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.Latency < 0 {
		s.Latency = 0
	}
	if s.Quota < 0 {
		s.Quota = 0
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
