// Package config loads the tile server's TOML configuration file,
// expanding $ENV_VAR references the same way the teacher's own config
// package does before handing the result to the TOML parser.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration file shape.
type Config struct {
	Webserver Webserver `toml:"webserver"`
	Database  Database  `toml:"database"`
	Cache     Cache     `toml:"cache"`
	Auth      Auth      `toml:"auth"`
}

type Webserver struct {
	HostPort string `toml:"host_port"`
}

// Database configures the PgExecutor's pool.
type Database struct {
	Host           string `toml:"host"`
	Port           uint16 `toml:"port"`
	Database       string `toml:"database"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	SSLMode        string `toml:"ssl_mode"`
	SSLKey         string `toml:"ssl_key"`
	SSLCert        string `toml:"ssl_cert"`
	SSLRootCert    string `toml:"ssl_root_cert"`
	MaxConnections int    `toml:"max_connections"`
	// MinConnections is read from the file but not passed to the pool;
	// no connections are opened ahead of the first query.
	MinConnections int    `toml:"min_connections"`
	ConfigStorePath string `toml:"config_store_path"`
}

// Cache selects and configures the CacheFacade backend. If RedisAddr is
// non-empty it is preferred; otherwise the filesystem backend rooted at
// Dir is used.
type Cache struct {
	Dir       string `toml:"dir"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
}

// Auth configures the AuthProvider.
type Auth struct {
	JWTSecret     string `toml:"jwt_secret"`
	SessionSecret string `toml:"session_secret"`
}

// Load reads and parses the TOML file at path, expanding $ENV_VAR
// references first.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	expanded, err := replaceEnvVars(f)
	if err != nil {
		return nil, fmt.Errorf("expanding env vars in %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.DecodeReader(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// replaceEnvVars substitutes "$NAME" tokens with the named environment
// variable's value (empty string if unset). A "$" not followed by a
// valid identifier character is left untouched, e.g. "$32.78" stays as
// written. os.Expand would read "$3" as a positional variable, so names
// that do not start with a letter or underscore are written back as-is.
func replaceEnvVars(r io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	expanded := os.Expand(string(data), func(name string) string {
		if c := name[0]; c != '_' && !('a' <= c && c <= 'z') && !('A' <= c && c <= 'Z') {
			return "$" + name
		}
		return os.Getenv(name)
	})
	return bytes.NewReader([]byte(expanded)), nil
}
