package dispatcher

import (
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/alonegg/scip-client/pkg/commsutil"
)

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("dispatcher:comms_integration_test - failed to create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("dispatcher:comms_integration_test - server failed to start")
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("dispatcher:comms_integration_test - failed to connect: %v", err)
	}

	return nc, func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}
}

func TestSubscribeComms_RequestReply(t *testing.T) {
	nc, cleanup := startTestServer(t, 14340)
	defer cleanup()

	d, _, got := newTestDispatcher(t)
	sub, err := d.SubscribeComms(nc, "")
	if err != nil {
		t.Fatalf("dispatcher:comms_integration_test - subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	payload := `{"jsonrpc":"2.0","method":"ReceiveResponse","params":{"correlationIdentifier":"known","parameters":[{"name":"result","value":"ok"}]}}`
	msg, err := nc.Request(commsutil.SubjectCallback, []byte(payload), 2*time.Second)
	if err != nil {
		t.Fatalf("dispatcher:comms_integration_test - request: %v", err)
	}

	var ack Acknowledgement
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		t.Fatalf("dispatcher:comms_integration_test - decode ack: %v", err)
	}
	if !ack.Ok || !ack.Dispatched {
		t.Errorf("dispatcher:comms_integration_test - ack = %+v", ack)
	}

	select {
	case resp := <-got:
		if resp.Parameters[0].Value != "ok" {
			t.Errorf("dispatcher:comms_integration_test - delivered %+v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher:comms_integration_test - handler not invoked")
	}
}

func TestSubscribeComms_FireAndForget(t *testing.T) {
	nc, cleanup := startTestServer(t, 14341)
	defer cleanup()

	d, _, got := newTestDispatcher(t)
	sub, err := d.SubscribeComms(nc, "custom.callbacks")
	if err != nil {
		t.Fatalf("dispatcher:comms_integration_test - subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("custom.callbacks", []byte(`not json`)); err != nil {
		t.Fatalf("dispatcher:comms_integration_test - publish: %v", err)
	}
	if err := nc.Publish("custom.callbacks", []byte(`{"correlationIdentifier":"known","errorCode":7,"errorMessage":"reverted"}`)); err != nil {
		t.Fatalf("dispatcher:comms_integration_test - publish: %v", err)
	}
	nc.Flush()

	select {
	case resp := <-got:
		if !resp.IsError() || *resp.ErrorCode != 7 {
			t.Errorf("dispatcher:comms_integration_test - delivered %+v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher:comms_integration_test - handler not invoked")
	}
}
