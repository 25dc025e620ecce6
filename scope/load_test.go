package scope_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/nodecall/budget"
	"github.com/aponysus/nodecall/policy"
	"github.com/aponysus/nodecall/retry"
	"github.com/aponysus/nodecall/scope"
	"github.com/aponysus/nodecall/strategy"
)

const sampleConfig = `
endpoint: node.internal:50051
env_file: node.env
tracing: true
policy:
  connect:
    blocking: true
  timeout:
    duration: 2s
  retry:
    max_attempts: 3
    interval: 250ms
    classifier_name: connection_only
  circuit:
    enabled: true
    threshold: 4
  rate_limit:
    enabled: true
    per_second: 50
    burst: 10
config:
  chain_id: testnet
logging:
  level: debug
  format: console
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"client.yaml": sampleConfig,
		"node.env":    "NODECALL_RETRY_MAX_ATTEMPTS=5\nNODECALL_TIMEOUT=4s\n",
	})
	t.Setenv("NODECALL_TIMEOUT", "3s")

	cfg, err := scope.Load(filepath.Join(dir, "client.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "node.internal:50051", cfg.Endpoint)
	assert.True(t, cfg.Policy.Connect.Blocking)
	assert.Equal(t, 5, cfg.Policy.Retry.MaxAttempts, "env_file overrides yaml")
	assert.Equal(t, 3*time.Second, cfg.Policy.Timeout.Duration, "process env overrides env_file")
	assert.Equal(t, policy.SecurityPlainText, cfg.Policy.Security.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)

	c, err := cfg.Context(nil)
	require.NoError(t, err)
	assert.True(t, c.IsGlobal())

	v, ok := c.Config(scope.ConfigEndpoint)
	require.True(t, ok)
	assert.Equal(t, "node.internal:50051", v)
	v, _ = c.Config("chain_id")
	assert.Equal(t, "testnet", v)

	assert.Equal(t, []strategy.Capability{
		strategy.CapConnect,
		strategy.CapSecurity,
		strategy.CapTimeout,
		strategy.CapTrace,
		strategy.CapRateLimit,
		strategy.CapCircuit,
		strategy.CapRetry,
	}, c.Capabilities())

	s, _ := c.Strategy(strategy.CapRetry)
	r := s.(*retry.Strategy)
	assert.Equal(t, 5, r.MaxAttempts())
	assert.Equal(t, 250*time.Millisecond, r.Interval())

	s, _ = c.Strategy(strategy.CapTimeout)
	assert.Equal(t, 3*time.Second, s.(*strategy.Timeout).Duration())

	s, _ = c.Strategy(strategy.CapConnect)
	assert.True(t, s.(*strategy.Connect).Blocking())

	_, ok = c.Strategy(strategy.CapCircuit)
	assert.True(t, ok)
	s, _ = c.Strategy(strategy.CapRateLimit)
	assert.NotNil(t, s.(*budget.RateLimit).Limiter())
}

func TestLoad_MinimalUsesDefaults(t *testing.T) {
	dir := writeFiles(t, map[string]string{"client.yaml": "endpoint: localhost:9000\n"})

	cfg, err := scope.Load(filepath.Join(dir, "client.yaml"))
	require.NoError(t, err)

	c, err := cfg.Context(nil)
	require.NoError(t, err)
	assert.Equal(t, []strategy.Capability{
		strategy.CapConnect,
		strategy.CapSecurity,
		strategy.CapTimeout,
	}, c.Capabilities())
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"bad endpoint":  "endpoint: 'not an address'\n",
		"bad mode":      "policy:\n  security:\n    mode: carrier-pigeon\n",
		"bad log level": "logging:\n  level: loud\n",
		"negative":      "policy:\n  retry:\n    max_attempts: -1\n",
		"missing env":   "env_file: nope.env\n",
		"not yaml":      "endpoint: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"client.yaml": body})
			_, err := scope.Load(filepath.Join(dir, "client.yaml"))
			assert.Error(t, err)
		})
	}

	_, err := scope.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := &scope.FileConfig{Policy: policy.Default()}

	t.Setenv("NODECALL_TIMEOUT", "soon")
	assert.ErrorContains(t, cfg.ApplyEnv(scope.EnvPrefix), "NODECALL_TIMEOUT")

	t.Setenv("NODECALL_TIMEOUT", "")
	t.Setenv("NODECALL_RETRY_MAX_ATTEMPTS", "many")
	assert.ErrorContains(t, cfg.ApplyEnv(scope.EnvPrefix), "RETRY_MAX_ATTEMPTS")
}

func TestFileConfig_TLSRequiresServerName(t *testing.T) {
	cfg := &scope.FileConfig{Policy: policy.Default()}
	cfg.Policy.Security.Mode = policy.SecurityTLS

	_, err := cfg.Context(nil)
	var nerr *policy.NormalizeError
	assert.ErrorAs(t, err, &nerr)
}

func TestPolicyStrategies_UnknownClassifier(t *testing.T) {
	p := policy.Default()
	p.Retry.MaxAttempts = 3
	p.Retry.ClassifierName = "conection_only"

	_, err := scope.PolicyStrategies(p, false, nil)
	var nerr *policy.NormalizeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "conection_only", nerr.Value)
}
