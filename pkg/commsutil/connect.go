// Package commsutil provides COMMS (NATS) connection helpers and the callback relay subjects.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

const (
	dialTimeout   = 10 * time.Second
	reconnectWait = 2 * time.Second
	pingInterval  = 30 * time.Second
)

// relayOptions configures a connection that carries gateway callbacks. The client
// reconnects without limit; subscriptions on SubjectCallback are restored by the
// library after each reconnect.
func relayOptions(name string) []comms.Option {
	return []comms.Option{
		comms.Name(name),
		comms.Timeout(dialTimeout),
		comms.PingInterval(pingInterval),
		comms.ReconnectWait(reconnectWait),
		comms.MaxReconnects(-1),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - Lost COMMS, callbacks on %s are not received until reconnect: %v", logPrefix, SubjectCallback, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - Callback relay on %s resumed via %s", logPrefix, SubjectCallback, nc.ConnectedUrl()))
		}),
		comms.ErrorHandler(func(_ *comms.Conn, sub *comms.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error(fmt.Sprintf("%s - Async COMMS error on subject=%q, callbacks may be dropped: %v", logPrefix, subject, err))
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - Callback relay connection closed", logPrefix))
		}),
	}
}

// Connect dials COMMS at url for the callback relay and lifecycle events.
func Connect(url, name string) (*comms.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Dialing COMMS at %s as %s", logPrefix, url, name))

	nc, err := comms.Connect(url, relayOptions(name)...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS at %s: %w", logPrefix, url, err)
	}

	slog.Info(fmt.Sprintf("%s - Callback relay ready on %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
