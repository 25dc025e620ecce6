// Package client owns the global Context, the channel to the node and the
// chain every operation is decorated with.
package client

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/aponysus/nodecall/budget"
	"github.com/aponysus/nodecall/chain"
	"github.com/aponysus/nodecall/circuit"
	"github.com/aponysus/nodecall/controlplane"
	"github.com/aponysus/nodecall/logging"
	"github.com/aponysus/nodecall/observe"
	"github.com/aponysus/nodecall/retry"
	"github.com/aponysus/nodecall/scope"
	"github.com/aponysus/nodecall/strategy"
	"github.com/aponysus/nodecall/transport"
)

// Builder collects strategies and configuration for a Client. Later calls
// for the same capability replace earlier ones.
type Builder struct {
	strategies map[strategy.Capability]strategy.Strategy
	config     map[string]string
	logger     *zap.Logger
	observer   observe.Observer
	configFile string
	dialOpts   []grpc.DialOption
	policies   controlplane.Provider
	circuit    *circuitSettings
}

type circuitSettings struct {
	threshold int
	cooldown  time.Duration
}

func NewBuilder() *Builder {
	return &Builder{
		strategies: make(map[strategy.Capability]strategy.Strategy),
		config:     make(map[string]string),
	}
}

func (b *Builder) with(s strategy.Strategy) *Builder {
	if s.Capability() == strategy.CapCircuit {
		b.circuit = nil
	}
	b.strategies[s.Capability()] = s
	return b
}

// WithEndpoint sets the node address, e.g. "localhost:9090".
func (b *Builder) WithEndpoint(endpoint string) *Builder {
	return b.AddConfiguration(scope.ConfigEndpoint, endpoint)
}

func (b *Builder) WithNonBlockingConnect() *Builder {
	return b.with(strategy.NonBlockingConnect())
}

func (b *Builder) WithBlockingConnect() *Builder {
	return b.with(strategy.BlockingConnect())
}

func (b *Builder) WithTimeout(d time.Duration) *Builder {
	return b.with(strategy.NewTimeout(d))
}

// WithRetry makes up to count attempts, waiting interval between them.
func (b *Builder) WithRetry(count int, interval time.Duration) *Builder {
	return b.with(retry.New(retry.WithMaxAttempts(count), retry.WithInterval(interval)))
}

func (b *Builder) WithPlainText() *Builder {
	return b.with(strategy.PlainText())
}

// WithTransportSecurity dials with TLS. clientCert and clientKey are
// optional and enable mutual TLS together.
func (b *Builder) WithTransportSecurity(serverName, caCert, clientCert, clientKey string) *Builder {
	return b.with(strategy.TransportSecurity(serverName, caCert, clientCert, clientKey))
}

func (b *Builder) WithRateLimit(perSecond float64, burst int) *Builder {
	return b.with(budget.NewRateLimit(perSecond, burst))
}

// WithCircuitBreaker opens a per-operation breaker after threshold
// consecutive transient failures.
func (b *Builder) WithCircuitBreaker(threshold int, cooldown time.Duration) *Builder {
	b.circuit = &circuitSettings{threshold: threshold, cooldown: cooldown}
	delete(b.strategies, strategy.CapCircuit)
	return b
}

// WithTracing records a span per attempt. A nil tracer uses the global
// provider.
func (b *Builder) WithTracing(tracer trace.Tracer) *Builder {
	return b.with(strategy.NewTrace(tracer))
}

// WithStrategy registers any strategy, including custom ones.
func (b *Builder) WithStrategy(s strategy.Strategy) *Builder {
	if s == nil {
		return b
	}
	return b.with(s)
}

func (b *Builder) AddConfiguration(key, value string) *Builder {
	b.config[key] = value
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithObserver(o observe.Observer) *Builder {
	b.observer = o
	return b
}

// WithConfigFile loads a YAML file first; builder settings override it.
func (b *Builder) WithConfigFile(path string) *Builder {
	b.configFile = path
	return b
}

// WithPolicyProvider supplies per-operation policies that override the
// global Context for the operations they name.
func (b *Builder) WithPolicyProvider(p controlplane.Provider) *Builder {
	b.policies = p
	return b
}

// WithDialOptions appends options to those the strategies contribute.
func (b *Builder) WithDialOptions(opts ...grpc.DialOption) *Builder {
	b.dialOpts = append(b.dialOpts, opts...)
	return b
}

// Build creates the Client. A channel is only dialed when an endpoint is
// configured.
func (b *Builder) Build() (*Client, error) {
	logger := b.logger
	var base *scope.Context
	if b.configFile != "" {
		fc, err := scope.Load(b.configFile)
		if err != nil {
			return nil, err
		}
		if logger == nil {
			l, err := logging.New(fc.Logging)
			if err != nil {
				return nil, fmt.Errorf("client: logger: %w", err)
			}
			logger = l
		}
		base, err = fc.Context(logger)
		if err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	strategies := make([]strategy.Strategy, 0, len(b.strategies)+1)
	for _, s := range b.strategies {
		strategies = append(strategies, s)
	}
	if b.circuit != nil {
		strategies = append(strategies, circuit.NewStrategy(b.circuit.threshold, b.circuit.cooldown, circuit.WithLogger(logger)))
	}

	var global *scope.Context
	if base == nil {
		global = scope.NewGlobal(strategies, b.config)
	} else {
		global = base.With(strategies...)
		for k, v := range b.config {
			global = global.WithConfig(k, v)
		}
	}

	endpoint, _ := global.Config(scope.ConfigEndpoint)
	logger.Info("client context built",
		zap.String("endpoint", endpoint),
		zap.Stringers("capabilities", global.Capabilities()),
	)

	c := &Client{
		global:   global,
		logger:   logger,
		observer: b.observer,
		policies: b.policies,
	}
	if endpoint != "" {
		conn, err := transport.Dial(global, logger, b.dialOpts...)
		if err != nil {
			return nil, err
		}
		c.conn = conn
	}
	c.chain = chain.New(global, c.chainOptions()...)
	return c, nil
}
