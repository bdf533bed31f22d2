package endpoint

import (
	"net"
	"testing"
	"time"

	"vrpn/dispatch"
	"vrpn/transport"

	"github.com/bfix/gospel/concurrent"

	vrpn "vrpn"
)

// pipeChannel adapts a net.Conn (as produced by net.Pipe) to the
// transport.Channel interface so tests can exercise an Endpoint without a
// real socket.
type pipeChannel struct {
	conn net.Conn
}

func (p *pipeChannel) Open(string) error { return nil }
func (p *pipeChannel) Close() error       { return p.conn.Close() }
func (p *pipeChannel) IsOpen() bool       { return true }
func (p *pipeChannel) Read(buf []byte, sig *concurrent.Signaller) (int, error) {
	return p.conn.Read(buf)
}
func (p *pipeChannel) Write(buf []byte, sig *concurrent.Signaller) (int, error) {
	return p.conn.Write(buf)
}

func newEndpointPair() (*Endpoint, *Endpoint) {
	a, b := net.Pipe()
	dispA := dispatch.NewTypeDispatcher()
	dispB := dispatch.NewTypeDispatcher()
	epA := New(transport.NewMsgChannel(&pipeChannel{conn: a}), dispA)
	epB := New(transport.NewMsgChannel(&pipeChannel{conn: b}), dispB)
	return epA, epB
}

func TestPackAndReceiveDescriptions(t *testing.T) {
	epA, epB := newEndpointPair()
	defer epA.Close()
	defer epB.Close()

	sig := concurrent.NewSignaller()

	senderId, err := epA.NewLocalSender("Tracker0")
	if err != nil {
		t.Fatalf("NewLocalSender: %v", err)
	}
	typeId, err := epA.NewLocalType("vrpn_Tracker Position")
	if err != nil {
		t.Fatalf("NewLocalType: %v", err)
	}

	// The descriptions sit in epA's outbox until flushed; net.Pipe has no
	// buffering, so the flush and B's polls must run concurrently.
	flushDone := make(chan error, 1)
	go func() { flushDone <- epA.Flush(sig) }()

	done := make(chan error, 1)
	go func() { done <- epB.Poll(sig) }()
	if err := <-done; err != nil {
		t.Fatalf("first poll (sender description): %v", err)
	}
	go func() { done <- epB.Poll(sig) }()
	if err := <-done; err != nil {
		t.Fatalf("second poll (type description): %v", err)
	}
	if err := <-flushDone; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if _, ok := epB.LocalSenderId(vrpn.RemoteId[vrpn.SenderId]{Id: vrpn.SenderId(senderId.Id)}); !ok {
		t.Fatal("expected epB to have learned the sender description")
	}
	if _, ok := epB.LocalTypeId(vrpn.RemoteId[vrpn.TypeId]{Id: vrpn.TypeId(typeId.Id)}); !ok {
		t.Fatal("expected epB to have learned the type description")
	}
}

func TestSendMessageDispatchesToHandler(t *testing.T) {
	epA, epB := newEndpointPair()
	defer epA.Close()
	defer epB.Close()

	sig := concurrent.NewSignaller()

	senderId, err := epA.NewLocalSender("Tracker0")
	if err != nil {
		t.Fatalf("NewLocalSender: %v", err)
	}
	typeId, err := epA.NewLocalType("vrpn_Tracker Position")
	if err != nil {
		t.Fatalf("NewLocalType: %v", err)
	}

	// Drain the two description messages epA queued (one for the sender,
	// one for the type) on B's side; B learns both names from the wire, so
	// it needs no registrations of its own.
	flushDone := make(chan error, 1)
	go func() { flushDone <- epA.Flush(sig) }()
	for i := 0; i < 2; i++ {
		done := make(chan error, 1)
		go func() { done <- epB.Poll(sig) }()
		if err := <-done; err != nil {
			t.Fatalf("draining description %d: %v", i, err)
		}
	}
	if err := <-flushDone; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	received := make(chan dispatch.Message, 1)
	bTypeId, ok := epB.LocalTypeId(vrpn.RemoteId[vrpn.TypeId]{Id: vrpn.TypeId(typeId.Id)})
	if !ok {
		t.Fatal("expected epB to have learned the type description")
	}
	if _, err := epB.dispatcher.AddTypedHandler(bTypeId, func(msg dispatch.Message) (dispatch.HandlerCode, error) {
		received <- msg
		return dispatch.ContinueProcessing, nil
	}); err != nil {
		t.Fatalf("AddTypedHandler: %v", err)
	}

	payload := []byte{1, 2, 3, 4}
	sendDone := make(chan error, 1)
	go func() {
		sendDone <- epA.SendMessage(sig, time.Now(), typeId, senderId, payload, vrpn.ClassReliable)
	}()

	recvDone := make(chan error, 1)
	go func() { recvDone <- epB.Poll(sig) }()

	if err := <-sendDone; err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := <-recvDone; err != nil {
		t.Fatalf("Poll: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Body) != string(payload) {
			t.Fatalf("body mismatch: got %v want %v", msg.Body, payload)
		}
	default:
		t.Fatal("expected handler to have fired")
	}
}

func TestSendDisconnectIsObservedByPeer(t *testing.T) {
	epA, epB := newEndpointPair()
	defer epA.Close()
	defer epB.Close()

	sig := concurrent.NewSignaller()

	sendDone := make(chan error, 1)
	go func() { sendDone <- epA.SendDisconnect(sig) }()

	pollDone := make(chan error, 1)
	go func() { pollDone <- epB.Poll(sig) }()

	if err := <-sendDone; err != nil {
		t.Fatalf("SendDisconnect: %v", err)
	}
	if err := <-pollDone; err != ErrRemoteDisconnected {
		t.Fatalf("expected ErrRemoteDisconnected, got %v", err)
	}
	if !epB.IsClosed() {
		t.Fatal("expected epB to be marked closed after receiving disconnect")
	}
}
