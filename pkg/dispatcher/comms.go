package dispatcher

import (
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/alonegg/scip-client/pkg/commsutil"
)

// SubscribeComms dispatches callbacks relayed over COMMS on subject. Requests that
// carry a reply subject receive the Acknowledgement.
func (d *Dispatcher) SubscribeComms(nc *comms.Conn, subject string) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectCallback
	}
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		ack := d.HandleCallback(IngressComms, msg.Data)
		if msg.Reply == "" {
			return
		}
		data, err := commsutil.EncodePayload(ack)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode acknowledgement: %v", logPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, msg.Reply, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	return sub, nil
}
