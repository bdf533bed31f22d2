// This file is part of vrpn-go, a VRPN-implementation in Golang.
// Copyright (C) 2019, 2020 Bernd Fix  >Y<
//
// vrpn-go is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// vrpn-go is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package connection

import (
	"testing"
	"time"

	"vrpn/dispatch"

	vrpn "vrpn"
)

// waitFor polls cond every few milliseconds until it reports true or the
// deadline passes, returning false on timeout. Endpoint attachment and
// description delivery both happen on background pump goroutines, so
// tests observe them this way rather than via a synchronous call.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestServerClientDescriptionRoundTrip(t *testing.T) {
	server, err := NewServer("srv", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Close()

	senderID, err := server.RegisterSender("Tracker0")
	if err != nil {
		t.Fatalf("RegisterSender: %v", err)
	}
	typeID, err := server.RegisterType("vrpn_Tracker Position")
	if err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	client, err := NewClient("cli", "tcp+"+server.acceptor.Address().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if !waitFor(t, time.Second, func() bool { return server.NumEndpoints() == 1 }) {
		t.Fatal("expected the server to observe one live endpoint")
	}

	// The client learns "vrpn_Tracker Position" from the description frame
	// the server sends on accept; wait for that before registering a
	// handler against the client-local id.
	if !waitFor(t, time.Second, func() bool {
		_, ok := client.GetTypeId("vrpn_Tracker Position")
		return ok
	}) {
		t.Fatal("expected the client to learn the type description")
	}
	clientTypeID, _ := client.GetTypeId("vrpn_Tracker Position")

	received := make(chan dispatch.Message, 1)
	if _, err := client.AddTypedHandler(clientTypeID, func(msg dispatch.Message) (dispatch.HandlerCode, error) {
		received <- msg
		return dispatch.ContinueProcessing, nil
	}); err != nil {
		t.Fatalf("AddTypedHandler: %v", err)
	}

	server.PackMessageBody(typeID, senderID, []byte{1, 2, 3}, vrpn.ClassReliable)

	select {
	case msg := <-received:
		if string(msg.Body) != string([]byte{1, 2, 3}) {
			t.Fatalf("body mismatch: got %v", msg.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client to receive the tracker-position message")
	}
}

func TestConnectionDropTerminatesAcceptor(t *testing.T) {
	server, err := NewServer("srv", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	addr := server.acceptor.Address().String()

	if err := server.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A second Close must be a harmless no-op, and a client dialing the
	// now-dead listener must fail rather than hang.
	if err := server.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := NewClient("cli", "tcp+"+addr); err == nil {
		t.Fatal("expected dialing a closed listener to fail")
	}
}

func TestLifecycleNotificationsFireOnConnectAndDrop(t *testing.T) {
	server, err := NewServer("srv", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Close()

	gotFirst := make(chan struct{}, 1)
	droppedLast := make(chan struct{}, 1)
	if _, err := server.AddTypedHandlerByName(dispatch.GotFirstConnectionName, func(msg dispatch.Message) (dispatch.HandlerCode, error) {
		select {
		case gotFirst <- struct{}{}:
		default:
		}
		return dispatch.ContinueProcessing, nil
	}); err != nil {
		t.Fatalf("AddTypedHandlerByName: %v", err)
	}
	if _, err := server.AddTypedHandlerByName(dispatch.DroppedLastConnectionName, func(msg dispatch.Message) (dispatch.HandlerCode, error) {
		select {
		case droppedLast <- struct{}{}:
		default:
		}
		return dispatch.ContinueProcessing, nil
	}); err != nil {
		t.Fatalf("AddTypedHandlerByName: %v", err)
	}

	client, err := NewClient("cli", "tcp+"+server.acceptor.Address().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	select {
	case <-gotFirst:
	case <-time.After(time.Second):
		t.Fatal("expected GotFirstConnection to fire")
	}

	client.Close()

	select {
	case <-droppedLast:
	case <-time.After(time.Second):
		t.Fatal("expected DroppedLastConnection to fire once the client disconnects")
	}
}
