package policy

import "time"

// Option mutates a Policy under construction.
type Option func(*Policy)

// New builds a normalized policy from Default and opts. If the options
// produce an invalid policy, the normalized default is returned instead.
func New(opts ...Option) Policy {
	p := Default()
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	normalized, err := p.Normalize()
	if err != nil {
		fallback, _ := Default().Normalize()
		return fallback
	}
	return normalized
}

func Timeout(d time.Duration) Option {
	return func(p *Policy) { p.Timeout.Duration = d }
}

// Retry enables retrying with up to n total attempts spaced by interval.
func Retry(n int, interval time.Duration) Option {
	return func(p *Policy) {
		p.Retry.MaxAttempts = n
		p.Retry.Interval = interval
	}
}

func Classifier(name string) Option {
	return func(p *Policy) { p.Retry.ClassifierName = name }
}

func BlockingConnect() Option {
	return func(p *Policy) { p.Connect.Blocking = true }
}

func PlainText() Option {
	return func(p *Policy) { p.Security = SecurityPolicy{Mode: SecurityPlainText} }
}

// TLS enables transport security. clientCert and clientKey may both be empty
// when the node does not require client authentication.
func TLS(serverName, caCert, clientCert, clientKey string) Option {
	return func(p *Policy) {
		p.Security = SecurityPolicy{
			Mode:           SecurityTLS,
			ServerName:     serverName,
			CACertFile:     caCert,
			ClientCertFile: clientCert,
			ClientKeyFile:  clientKey,
		}
	}
}

func RateLimit(perSecond float64, burst int) Option {
	return func(p *Policy) {
		p.RateLimit = RateLimitPolicy{Enabled: true, PerSecond: perSecond, Burst: burst}
	}
}

func Circuit(threshold int, cooldown time.Duration) Option {
	return func(p *Policy) {
		p.Circuit = CircuitPolicy{Enabled: true, Threshold: threshold, Cooldown: cooldown}
	}
}
