package app

import (
	"net"
	"strconv"
	"time"
)

// AppConfig contains application configuration
type AppConfig struct {
	Host            string        `env:"APP_HOST" env-default:"0.0.0.0"`
	Port            uint16        `env:"APP_PORT" env-default:"4000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Addr returns host:port for http.Server.
func (c AppConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}
