// Package config loads the TOML configuration of the server and the client.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"privly_chat/internal/model"
	"privly_chat/internal/service/relay"

	"github.com/BurntSushi/toml"
)

const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
)

type Logging struct {
	Level       string
	Development bool
}

func (l *Logging) fixup() error {
	if l.Level == "" {
		l.Level = "info"
	}
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
		l.Level = strings.ToLower(l.Level)
		return nil
	}
	return fmt.Errorf("config: Logging.Level %q is not one of debug, info, warn, error", l.Level)
}

type Server struct {
	Address         string
	ShutdownTimeout time.Duration
}

type Relay struct {
	IdentityParam string
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	PongWait      time.Duration
	MaxFrameBytes int64
	SendRate      float64
	SendBurst     int
}

// RelayConfig converts the file section to the relay package's Config.
func (r *Relay) RelayConfig() relay.Config {
	return relay.Config{
		IdentityParam: r.IdentityParam,
		WriteTimeout:  r.WriteTimeout,
		PingInterval:  r.PingInterval,
		PongWait:      r.PongWait,
		MaxFrameBytes: r.MaxFrameBytes,
		SendRate:      r.SendRate,
		SendBurst:     r.SendBurst,
	}
}

type Directory struct {
	Backend string

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

type ServerConfig struct {
	Server    Server
	Relay     Relay
	Directory Directory
	Logging   Logging
}

func DefaultServerConfig() *ServerConfig {
	def := relay.DefaultConfig()
	return &ServerConfig{
		Server: Server{
			Address:         "localhost:9090",
			ShutdownTimeout: 10 * time.Second,
		},
		Relay: Relay{
			IdentityParam: def.IdentityParam,
			WriteTimeout:  def.WriteTimeout,
			PingInterval:  def.PingInterval,
			PongWait:      def.PongWait,
			MaxFrameBytes: def.MaxFrameBytes,
			SendRate:      def.SendRate,
			SendBurst:     def.SendBurst,
		},
		Directory: Directory{
			Backend:       BackendMemory,
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "mydb",
			RedisAddr:     "localhost:6379",
		},
		Logging: Logging{Level: "info"},
	}
}

// FixupAndValidate fills unset values with defaults and rejects impossible
// combinations.
func (c *ServerConfig) FixupAndValidate() error {
	def := DefaultServerConfig()

	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}

	r := &c.Relay
	if r.IdentityParam == "" {
		r.IdentityParam = def.Relay.IdentityParam
	}
	if r.WriteTimeout <= 0 {
		r.WriteTimeout = def.Relay.WriteTimeout
	}
	if r.PingInterval <= 0 {
		r.PingInterval = def.Relay.PingInterval
	}
	if r.PongWait <= 0 {
		r.PongWait = def.Relay.PongWait
	}
	if r.MaxFrameBytes <= 0 {
		r.MaxFrameBytes = def.Relay.MaxFrameBytes
	}
	if r.PingInterval >= r.PongWait {
		return errors.New("config: Relay.PingInterval must be shorter than Relay.PongWait")
	}
	if r.SendRate < 0 || r.SendBurst < 0 {
		return errors.New("config: Relay.SendRate and Relay.SendBurst must not be negative")
	}

	d := &c.Directory
	if d.Backend == "" {
		d.Backend = BackendMemory
	}
	switch d.Backend {
	case BackendMemory:
	case BackendMongo:
		if d.MongoURI == "" {
			d.MongoURI = def.Directory.MongoURI
		}
		if d.MongoDatabase == "" {
			d.MongoDatabase = def.Directory.MongoDatabase
		}
	case BackendRedis:
		if d.RedisAddr == "" {
			d.RedisAddr = def.Directory.RedisAddr
		}
		if d.RedisTTL < 0 {
			return errors.New("config: Directory.RedisTTL must not be negative")
		}
	default:
		return fmt.Errorf("config: unknown Directory.Backend %q", d.Backend)
	}

	return c.Logging.fixup()
}

type ClientConfig struct {
	Identity       string
	ServerAddress  string
	IdentityParam  string
	StateFile      string
	RequestTimeout time.Duration
	Logging        Logging
}

func (c *ClientConfig) FixupAndValidate() error {
	if c.ServerAddress == "" {
		c.ServerAddress = "localhost:9090"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.IdentityParam == "" {
		c.IdentityParam = relay.DefaultConfig().IdentityParam
	}
	if err := model.ValidateIdentity(c.Identity); err != nil {
		return fmt.Errorf("config: Identity %q: %w", c.Identity, err)
	}
	if c.StateFile == "" {
		c.StateFile = c.Identity + ".db"
	}
	return c.Logging.fixup()
}

// LoadServer parses b on top of the defaults.
func LoadServer(b []byte) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServerFile reads path; an empty path yields the defaults.
func LoadServerFile(path string) (*ServerConfig, error) {
	if path == "" {
		cfg := DefaultServerConfig()
		return cfg, cfg.FixupAndValidate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadServer(b)
}

// LoadClient parses b without validating, so callers can apply command line
// overrides before FixupAndValidate.
func LoadClient(b []byte) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	return cfg, nil
}

func LoadClientFile(path string) (*ClientConfig, error) {
	if path == "" {
		return &ClientConfig{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadClient(b)
}
