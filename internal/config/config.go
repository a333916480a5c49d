// Package config provides layered configuration loading for the quickshare
// service. Defaults are overlaid with QS_-prefixed environment variables,
// decoded via koanf, and validated before use.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds the merged runtime configuration for the quickshare service.
// Order of precedence (lowest → highest): Defaults → Environment.
type Config struct {
	Addr         string        `koanf:"addr" validate:"required,ip_port"`
	DataDir      string        `koanf:"data_dir" validate:"required,data_dir"`
	MaxBytes     ByteSize      `koanf:"max_bytes" validate:"required,gt=0"`
	MinTTL       time.Duration `koanf:"min_ttl" validate:"required,gt=0"`
	MaxTTL       time.Duration `koanf:"max_ttl" validate:"required,gt=0"`
	MetricsToken string        `koanf:"metrics_token"`
	NoUpload     bool          `koanf:"no_upload"`
	NoPipe       bool          `koanf:"no_pipe"`
}

// DefaultAppConfig is the baseline configuration. The listen port and data
// directory line up with the container packaging (3000/tcp, /data mounted
// over ./data); the 1 GiB cap matches the historical upload limit.
var DefaultAppConfig = Config{
	Addr:     ":3000",
	DataDir:  "./data",
	MaxBytes: 1 << 30, // 1 GiB
	MinTTL:   1 * time.Minute,
	MaxTTL:   7 * 24 * time.Hour, // 7 days
}

const envPrefix = "QS_"

// Loader funcs are package vars so tests can inject failures.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil)
}

var registerValidators = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	return v.RegisterValidation("data_dir", validDataDir)
}

// Load merges defaults with environment variables, decodes, and validates.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, err
	}
	if err := envLoader(k); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				StringToByteSize(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, err
	}
	v := validator.New()
	if err := registerValidators(v); err != nil {
		return nil, err
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, err
	}
	if cfg.MinTTL >= cfg.MaxTTL {
		return nil, fmt.Errorf("min_ttl must be less than max_ttl")
	}
	return &cfg, nil
}

// SQLiteDSN derives the registry DSN from the data directory. The pragmas
// pin WAL journaling, foreign keys, a busy timeout, and full synchronous
// writes so a completed upload survives process loss.
func (c *Config) SQLiteDSN() string {
	const params = "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL"
	path := c.DataDir
	if len(path) == 0 || path[len(path)-1] != '/' {
		path += "/"
	}
	return "file:" + path + "quickshare.db" + params
}

// validIPPort accepts "host:port" where host is empty or a literal IP and
// port is a decimal in [1, 65535]. Hostnames are rejected; a listen address
// should bind an interface, not resolve a name.
func validIPPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return false
	}
	return true
}

// validDataDir rejects empty, root, and traversal-escaping paths.
func validDataDir(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" {
		return false
	}
	clean := filepath.Clean(p)
	if clean == "." || clean == "/" || clean == ".." {
		return false
	}
	return !strings.HasPrefix(clean, "../")
}
