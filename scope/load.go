package scope

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/aponysus/nodecall/budget"
	"github.com/aponysus/nodecall/circuit"
	"github.com/aponysus/nodecall/classify"
	"github.com/aponysus/nodecall/logging"
	"github.com/aponysus/nodecall/policy"
	"github.com/aponysus/nodecall/retry"
	"github.com/aponysus/nodecall/strategy"
)

// ConfigEndpoint is the configuration key holding the node address.
const ConfigEndpoint = "endpoint"

// EnvPrefix prefixes the environment variables ApplyEnv reads.
const EnvPrefix = "NODECALL_"

// FileConfig is the on-disk description of a client.
type FileConfig struct {
	Endpoint string            `yaml:"endpoint" validate:"omitempty,hostname_port"`
	EnvFile  string            `yaml:"env_file,omitempty"`
	Tracing  bool              `yaml:"tracing,omitempty"`
	Policy   policy.Policy     `yaml:"policy"`
	Config   map[string]string `yaml:"config,omitempty"`
	Logging  logging.Config    `yaml:"logging"`

	env map[string]string
}

// Load reads a YAML client description from path, applies its env_file and
// NODECALL_* environment overrides, and validates the result.
func Load(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scope: read config: %w", err)
	}
	cfg := &FileConfig{Policy: policy.Default(), Logging: logging.Default()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("scope: parse %s: %w", path, err)
	}

	if cfg.EnvFile != "" {
		envPath := cfg.EnvFile
		if !filepath.IsAbs(envPath) {
			envPath = filepath.Join(filepath.Dir(path), envPath)
		}
		env, err := godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("scope: env_file: %w", err)
		}
		cfg.env = env
	}

	if err := cfg.ApplyEnv(EnvPrefix); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (f *FileConfig) Validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("scope: invalid config: %w", err)
	}
	return nil
}

func (f *FileConfig) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := f.env[key]
	return v, ok
}

// ApplyEnv overrides fields from prefix-named variables, such as
// NODECALL_ENDPOINT and NODECALL_TIMEOUT. The process environment wins over
// values from env_file.
func (f *FileConfig) ApplyEnv(prefix string) error {
	str := func(name string, dst *string) {
		if v, ok := f.lookup(prefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := f.lookup(prefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("scope: %s%s: %w", prefix, name, err)
		}
		*dst = d
		return nil
	}

	str("ENDPOINT", &f.Endpoint)
	str("SERVER_NAME", &f.Policy.Security.ServerName)
	str("CA_CERT_FILE", &f.Policy.Security.CACertFile)
	str("CLIENT_CERT_FILE", &f.Policy.Security.ClientCertFile)
	str("CLIENT_KEY_FILE", &f.Policy.Security.ClientKeyFile)
	str("LOG_LEVEL", &f.Logging.Level)

	var mode string
	str("SECURITY_MODE", &mode)
	if mode != "" {
		f.Policy.Security.Mode = policy.SecurityMode(mode)
	}

	if err := dur("TIMEOUT", &f.Policy.Timeout.Duration); err != nil {
		return err
	}
	if err := dur("RETRY_INTERVAL", &f.Policy.Retry.Interval); err != nil {
		return err
	}
	if v, ok := f.lookup(prefix + "RETRY_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("scope: %sRETRY_MAX_ATTEMPTS: %w", prefix, err)
		}
		f.Policy.Retry.MaxAttempts = n
	}
	if v, ok := f.lookup(prefix + "BLOCKING_CONNECT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("scope: %sBLOCKING_CONNECT: %w", prefix, err)
		}
		f.Policy.Connect.Blocking = b
	}
	return nil
}

// Strategies turns the file's policy into strategies.
func (f *FileConfig) Strategies(logger *zap.Logger) ([]strategy.Strategy, error) {
	return PolicyStrategies(f.Policy, f.Tracing, logger)
}

// PolicyStrategies normalizes p and builds its strategies. Retry, circuit
// breaking and rate limiting are only included when enabled, tracing only
// when tracing is set.
func PolicyStrategies(p policy.Policy, tracing bool, logger *zap.Logger) ([]strategy.Strategy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}
	if p.Normalization.Changed {
		logger.Debug("policy normalized", zap.Strings("fields", p.Normalization.ChangedFields))
	}

	out := strategy.FromPolicy(p)
	if p.Retry.Enabled() {
		r, err := retry.FromPolicy(p.Retry, classify.NewRegistry())
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if p.Circuit.Enabled {
		out = append(out, circuit.NewStrategy(p.Circuit.Threshold, p.Circuit.Cooldown, circuit.WithLogger(logger)))
	}
	if p.RateLimit.Enabled {
		out = append(out, budget.FromPolicy(p.RateLimit))
	}
	if tracing {
		out = append(out, strategy.NewTrace(nil))
	}
	return out, nil
}

// Context builds the global Context the file describes. The endpoint is
// stored under ConfigEndpoint.
func (f *FileConfig) Context(logger *zap.Logger) (*Context, error) {
	strategies, err := f.Strategies(logger)
	if err != nil {
		return nil, err
	}
	config := make(map[string]string, len(f.Config)+1)
	for k, v := range f.Config {
		config[k] = v
	}
	if f.Endpoint != "" {
		config[ConfigEndpoint] = f.Endpoint
	}
	return NewGlobal(strategies, config), nil
}
