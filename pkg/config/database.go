package config

import (
	"net"
	"net/url"
	"strconv"
)

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host        string `env:"USERPERM_PG_HOST" env-default:"localhost"`
	Port        uint16 `env:"USERPERM_PG_PORT" env-default:"5432"`
	Database    string `env:"USERPERM_PG_DATABASE" env-default:"userperm_db"`
	User        string `env:"USERPERM_PG_USER" env-default:"userperm"`
	Password    string `env:"USERPERM_PG_PASSWORD" env-default:"pwd"`
	SSLMode     string `env:"USERPERM_PG_SSLMODE" env-default:"disable"`
	AutoMigrate bool   `env:"USERPERM_PG_AUTO_MIGRATE" env-default:"true"`
}

// ConnString converts the config to a PostgreSQL connection URL. User and
// password are escaped.
func (d PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(int(d.Port))),
		Path:   "/" + d.Database,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}
