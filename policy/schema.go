package policy

import (
	"time"
)

type SecurityMode string

const (
	SecurityPlainText SecurityMode = "plaintext"
	SecurityTLS       SecurityMode = "tls"
)

// DefaultTimeout bounds each attempt when no timeout is configured.
const DefaultTimeout = 5 * time.Second

type ConnectPolicy struct {
	Blocking bool `json:"blocking" yaml:"blocking"`
}

type SecurityPolicy struct {
	Mode           SecurityMode `json:"mode" yaml:"mode" validate:"omitempty,oneof=plaintext tls"`
	ServerName     string       `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	CACertFile     string       `json:"ca_cert_file,omitempty" yaml:"ca_cert_file,omitempty"`
	ClientCertFile string       `json:"client_cert_file,omitempty" yaml:"client_cert_file,omitempty"`
	ClientKeyFile  string       `json:"client_key_file,omitempty" yaml:"client_key_file,omitempty"`
}

type TimeoutPolicy struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// RetryPolicy is disabled when MaxAttempts is zero.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts" validate:"gte=0"`
	Interval       time.Duration `json:"interval" yaml:"interval"`
	ClassifierName string        `json:"classifier_name,omitempty" yaml:"classifier_name,omitempty"`
}

func (r RetryPolicy) Enabled() bool { return r.MaxAttempts > 0 }

type RateLimitPolicy struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	PerSecond float64 `json:"per_second" yaml:"per_second" validate:"gte=0"`
	Burst     int     `json:"burst" yaml:"burst" validate:"gte=0"`
}

type CircuitPolicy struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Threshold int           `json:"threshold" yaml:"threshold" validate:"gte=0"` // consecutive failures
	Cooldown  time.Duration `json:"cooldown" yaml:"cooldown"`
}

type NormalizationInfo struct {
	Changed       bool     `json:"-" yaml:"-"`
	ChangedFields []string `json:"-" yaml:"-"`
}

// Policy is the declarative description of the strategies a client installs.
type Policy struct {
	Connect   ConnectPolicy   `json:"connect" yaml:"connect"`
	Security  SecurityPolicy  `json:"security" yaml:"security"`
	Timeout   TimeoutPolicy   `json:"timeout" yaml:"timeout"`
	Retry     RetryPolicy     `json:"retry" yaml:"retry"`
	RateLimit RateLimitPolicy `json:"rate_limit" yaml:"rate_limit"`
	Circuit   CircuitPolicy   `json:"circuit" yaml:"circuit"`

	Normalization NormalizationInfo `json:"-" yaml:"-"`
}

// Default is non-blocking connect, plaintext transport and a 5s timeout,
// with retry, rate limiting and circuit breaking off.
func Default() Policy {
	return Policy{
		Connect:  ConnectPolicy{Blocking: false},
		Security: SecurityPolicy{Mode: SecurityPlainText},
		Timeout:  TimeoutPolicy{Duration: DefaultTimeout},
	}
}

const (
	maxRetryAttempts    = 10
	minIntervalFloor    = 1 * time.Millisecond
	maxIntervalCeiling  = 30 * time.Second
	minTimeoutFloor     = 1 * time.Millisecond
	defaultRetryWait    = 100 * time.Millisecond
	defaultBurst        = 1
	minCircuitThreshold = 1
	minCircuitCooldown  = 100 * time.Millisecond
)

// Normalize fills zero values and clamps out-of-range ones. It only fails
// for values that cannot be corrected, such as an unknown security mode.
func (p Policy) Normalize() (Policy, error) {
	normalized := p
	norm := &normalized.Normalization

	markChanged := func(field string) {
		norm.Changed = true
		for _, f := range norm.ChangedFields {
			if f == field {
				return
			}
		}
		norm.ChangedFields = append(norm.ChangedFields, field)
	}

	switch normalized.Security.Mode {
	case "":
		normalized.Security.Mode = SecurityPlainText
		markChanged("security.mode")
	case SecurityPlainText:
	case SecurityTLS:
		if normalized.Security.CACertFile == "" && normalized.Security.ServerName == "" {
			return Policy{}, &NormalizeError{Field: "security.server_name", Value: ""}
		}
		if (normalized.Security.ClientCertFile == "") != (normalized.Security.ClientKeyFile == "") {
			return Policy{}, &NormalizeError{Field: "security.client_key_file", Value: normalized.Security.ClientKeyFile}
		}
	default:
		return Policy{}, &NormalizeError{Field: "security.mode", Value: string(normalized.Security.Mode)}
	}

	if normalized.Timeout.Duration <= 0 {
		normalized.Timeout.Duration = DefaultTimeout
		markChanged("timeout.duration")
	}
	if normalized.Timeout.Duration < minTimeoutFloor {
		normalized.Timeout.Duration = minTimeoutFloor
		markChanged("timeout.duration")
	}

	if normalized.Retry.MaxAttempts < 0 {
		normalized.Retry.MaxAttempts = 0
		markChanged("retry.max_attempts")
	} else if normalized.Retry.MaxAttempts > maxRetryAttempts {
		normalized.Retry.MaxAttempts = maxRetryAttempts
		markChanged("retry.max_attempts")
	}
	if normalized.Retry.Enabled() {
		if normalized.Retry.Interval <= 0 {
			normalized.Retry.Interval = defaultRetryWait
			markChanged("retry.interval")
		}
		if normalized.Retry.Interval < minIntervalFloor {
			normalized.Retry.Interval = minIntervalFloor
			markChanged("retry.interval")
		} else if normalized.Retry.Interval > maxIntervalCeiling {
			normalized.Retry.Interval = maxIntervalCeiling
			markChanged("retry.interval")
		}
	}

	if normalized.RateLimit.Enabled {
		if normalized.RateLimit.PerSecond <= 0 {
			return Policy{}, &NormalizeError{Field: "rate_limit.per_second", Value: "<= 0"}
		}
		if normalized.RateLimit.Burst < defaultBurst {
			normalized.RateLimit.Burst = defaultBurst
			markChanged("rate_limit.burst")
		}
	}

	if !normalized.Circuit.Enabled {
		return normalized, nil
	}

	if normalized.Circuit.Threshold <= 0 {
		normalized.Circuit.Threshold = 5
		markChanged("circuit.threshold")
	}
	if normalized.Circuit.Threshold < minCircuitThreshold {
		normalized.Circuit.Threshold = minCircuitThreshold
		markChanged("circuit.threshold")
	}

	if normalized.Circuit.Cooldown <= 0 {
		normalized.Circuit.Cooldown = 10 * time.Second
		markChanged("circuit.cooldown")
	}
	if normalized.Circuit.Cooldown < minCircuitCooldown {
		normalized.Circuit.Cooldown = minCircuitCooldown
		markChanged("circuit.cooldown")
	}

	return normalized, nil
}
