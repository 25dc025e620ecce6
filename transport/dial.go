// Package transport adapts gRPC stubs and JSON-RPC endpoints into the
// remote calls a chain decorates.
package transport

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aponysus/nodecall/scope"
	"github.com/aponysus/nodecall/strategy"
)

// ErrNoEndpoint is returned by Dial when the Context has no endpoint.
var ErrNoEndpoint = errors.New("nodecall: no endpoint configured")

// DialOptions collects the channel options of every strategy in c that
// shapes the channel.
func DialOptions(c *scope.Context) ([]grpc.DialOption, error) {
	var (
		opts    []grpc.DialOption
		secured bool
	)
	for _, s := range c.Strategies() {
		cc, ok := s.(strategy.ChannelConfigurer)
		if !ok {
			continue
		}
		o, err := cc.DialOptions()
		if err != nil {
			return nil, fmt.Errorf("nodecall: %s dial options: %w", s.Capability(), err)
		}
		if s.Capability() == strategy.CapSecurity {
			secured = true
		}
		opts = append(opts, o...)
	}
	if !secured {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return opts, nil
}

// Dial opens a channel to the endpoint stored under scope.ConfigEndpoint.
// The channel connects lazily; extra options are appended after those the
// strategies contribute.
func Dial(c *scope.Context, logger *zap.Logger, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint, ok := c.Config(scope.ConfigEndpoint)
	if !ok || endpoint == "" {
		return nil, ErrNoEndpoint
	}

	opts, err := DialOptions(c)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("nodecall: dial %s: %w", endpoint, err)
	}
	logger.Info("channel created",
		zap.String("endpoint", endpoint),
		zap.String("scope", c.Name()),
	)
	return conn, nil
}
