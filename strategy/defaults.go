package strategy

import "github.com/aponysus/nodecall/policy"

// Defaults returns the strategies installed for necessary capabilities a
// client leaves unset: non-blocking connect, DefaultTimeout and plain text.
func Defaults() map[Capability]Strategy {
	return map[Capability]Strategy{
		CapConnect:  NonBlockingConnect(),
		CapTimeout:  NewTimeout(DefaultTimeout),
		CapSecurity: PlainText(),
	}
}

// FromPolicy builds the channel and timeout strategies described by p.
// p should already be normalized.
func FromPolicy(p policy.Policy) []Strategy {
	out := make([]Strategy, 0, 3)

	if p.Connect.Blocking {
		out = append(out, BlockingConnect())
	} else {
		out = append(out, NonBlockingConnect())
	}

	switch p.Security.Mode {
	case policy.SecurityTLS:
		out = append(out, TransportSecurity(
			p.Security.ServerName,
			p.Security.CACertFile,
			p.Security.ClientCertFile,
			p.Security.ClientKeyFile,
		))
	default:
		out = append(out, PlainText())
	}

	out = append(out, NewTimeout(p.Timeout.Duration))
	return out
}
