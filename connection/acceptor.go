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
	"net"
	"strconv"
	"strings"

	"vrpn/endpoint"
	"vrpn/transport"

	"github.com/bfix/gospel/logger"
)

// Acceptor listens for incoming peer connections on behalf of a Connection
// and installs a new Endpoint for each one that completes the handshake. It
// holds a plain pointer back to its owning Connection, so the accept loop
// keeps that Connection reachable for as long as it runs. The loop stops
// only when Connection.Close closes the listener; a Connection that is
// merely no longer referenced does not stop it.
type Acceptor struct {
	owner    *Connection
	server   transport.ChannelServer
	hdlr     chan transport.Channel
	upnpID   string // non-empty if a UPnP port mapping was assigned
	upnpAddr string // the externally reachable address reported by the router
}

// newAcceptor opens a listening socket on addr and returns an Acceptor
// bound to owner. The accept loop is not started until run is called.
//
// addr is normally a plain "host:port" TCP endpoint. When it is prefixed
// with "upnp:" (e.g. "upnp:3883"), the acceptor first asks the router for
// a port forward via transport.UPNP and listens on the local address that
// mapping hands back, so a peer behind a home router can still accept
// incoming connections from across the internet -- the low-latency UDP
// side channel reserved elsewhere in this API would use the same
// mechanism once it grows a transport of its own.
func newAcceptor(owner *Connection, addr string) (*Acceptor, error) {
	a := &Acceptor{
		owner: owner,
		hdlr:  make(chan transport.Channel, 8),
	}
	listenAddr := addr
	if port, ok := strings.CutPrefix(addr, "upnp:"); ok {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, err
		}
		id, local, remote, err := transport.UPNP("tcp", addr, p)
		if err != nil {
			return nil, err
		}
		a.upnpID = id
		a.upnpAddr = remote
		listenAddr = local
		logger.Printf(logger.INFO, "[%s] UPnP port mapping assigned: %s (externally %s)\n", owner.tag, local, remote)
	}
	srv, err := transport.NewChannelServer("tcp+"+listenAddr, a.hdlr)
	if err != nil {
		if a.upnpID != "" {
			transport.UnassignUPNP(a.upnpID)
		}
		return nil, err
	}
	a.server = srv
	return a, nil
}

// Address returns the bound listening address.
func (a *Acceptor) Address() net.Addr {
	return a.server.Address()
}

// run starts the goroutine that hands every incoming Channel off to its own
// handshake-and-install goroutine, so one slow or malicious peer stuck in
// the handshake cannot stall acceptance of the next one. A nil Channel
// marks the listener giving up (Accept failed, typically because close
// tore it down) and ends the loop.
func (a *Acceptor) run() {
	go func() {
		for {
			ch := <-a.hdlr
			if ch == nil {
				break
			}
			go a.handshakeAndInstall(ch)
		}
	}()
}

func (a *Acceptor) handshakeAndInstall(ch transport.Channel) {
	if a.owner.isClosed() {
		ch.Close()
		return
	}
	if err := handshakeServer(ch, defaultHandshakeTimeout); err != nil {
		logger.Printf(logger.WARN, "[%s] handshake failed: %s\n", a.owner.tag, err)
		ch.Close()
		return
	}
	if a.owner.isClosed() {
		ch.Close()
		return
	}
	ep := endpoint.New(transport.NewMsgChannel(ch), a.owner.dispatcher)
	a.owner.addEndpoint(ep)
}

// close stops the listener and releases any UPnP port mapping it assigned.
// Already-accepted endpoints are unaffected; the owning Connection closes
// those itself.
func (a *Acceptor) close() error {
	if a.upnpID != "" {
		transport.UnassignUPNP(a.upnpID)
	}
	return a.server.Close()
}
