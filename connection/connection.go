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

// Package connection implements the top-level object a VRPN peer process
// holds: a shared type dispatcher plus a set of per-peer Endpoints, driven
// either by an Acceptor (server mode) or a single dialed Endpoint (client
// mode).
package connection

import (
	"errors"
	"sync"
	"time"

	"vrpn/dispatch"
	"vrpn/endpoint"
	"vrpn/transport"
	"vrpn/util"

	"github.com/bfix/gospel/concurrent"
	"github.com/bfix/gospel/logger"

	vrpn "vrpn"
)

// Connection owns the dispatcher and the endpoint table for one peer
// process. Endpoints are keyed by a process-unique id (util.NextID), so a
// retired peer's id is never handed to a later accept and a stale id
// simply misses the map.
type Connection struct {
	mtx        sync.Mutex
	dispatcher *dispatch.TypeDispatcher
	endpoints  *util.Map[int, *endpoint.Endpoint]

	tag string // short label for log lines, e.g. "null_tracker"
	sig *concurrent.Signaller

	acceptor *Acceptor
	wg       sync.WaitGroup
	closed   bool
}

// NewServer creates a Connection with no endpoints yet and starts an
// Acceptor listening on addr ("0.0.0.0:3883" style, no "tcp+" prefix). A
// "upnp:<port>" addr instead asks the local router for a port forward
// before binding, see newAcceptor.
func NewServer(tag, addr string) (*Connection, error) {
	c := &Connection{
		dispatcher: dispatch.NewTypeDispatcher(),
		endpoints:  util.NewMap[int, *endpoint.Endpoint](),
		tag:        tag,
		sig:        concurrent.NewSignaller(),
	}
	acc, err := newAcceptor(c, addr)
	if err != nil {
		return nil, err
	}
	c.acceptor = acc
	acc.run()
	logger.Printf(logger.INFO, "[%s] listening on %s\n", tag, acc.Address())
	return c, nil
}

// NewClient dials spec ("tcp+host:port", see transport.NewChannel),
// performs the handshake and installs the single resulting Endpoint.
func NewClient(tag, spec string) (*Connection, error) {
	ch, err := transport.NewChannel(spec)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		dispatcher: dispatch.NewTypeDispatcher(),
		endpoints:  util.NewMap[int, *endpoint.Endpoint](),
		tag:        tag,
		sig:        concurrent.NewSignaller(),
	}
	if err := handshakeClient(ch, defaultHandshakeTimeout); err != nil {
		ch.Close()
		return nil, err
	}
	ep := endpoint.New(transport.NewMsgChannel(ch), c.dispatcher)
	c.addEndpoint(ep)
	logger.Printf(logger.INFO, "[%s] connected to %s\n", tag, spec)
	return c, nil
}

// RegisterType finds or creates a local type id for name on the shared
// dispatcher, then (if newly created) pushes the same id into every live
// endpoint so every peer connection agrees on the name <-> id mapping this
// process uses internally for callback routing.
func (c *Connection) RegisterType(name vrpn.Name) (vrpn.LocalId[vrpn.TypeId], error) {
	id, isNew, err := c.dispatcher.RegisterType(name)
	if err != nil {
		return id, err
	}
	if isNew {
		c.bindToLiveEndpoints(func(ep *endpoint.Endpoint) error {
			return ep.BindLocalType(id, name)
		}, name)
	}
	return id, nil
}

// RegisterSender finds or creates a local sender id for name; see
// RegisterType.
func (c *Connection) RegisterSender(name vrpn.Name) (vrpn.LocalId[vrpn.SenderId], error) {
	id, isNew, err := c.dispatcher.RegisterSender(name)
	if err != nil {
		return id, err
	}
	if isNew {
		c.bindToLiveEndpoints(func(ep *endpoint.Endpoint) error {
			return ep.BindLocalSender(id, name)
		}, name)
	}
	return id, nil
}

func (c *Connection) bindToLiveEndpoints(bind func(*endpoint.Endpoint) error, name vrpn.Name) {
	for _, ep := range c.liveEndpoints() {
		if err := bind(ep); err != nil {
			logger.Printf(logger.ERROR, "[%s] binding %q to endpoint: %s\n", c.tag, name, err)
			continue
		}
		// Push the queued description out now; the peer must learn the
		// name before any message referencing its id arrives.
		if err := ep.Flush(c.sig); err != nil {
			logger.Printf(logger.WARN, "[%s] flushing description %q: %s\n", c.tag, name, err)
		}
	}
}

// GetTypeId looks up an already-registered type by name.
func (c *Connection) GetTypeId(name vrpn.Name) (vrpn.LocalId[vrpn.TypeId], bool) {
	return c.dispatcher.GetTypeId(name)
}

// GetSenderId looks up an already-registered sender by name.
func (c *Connection) GetSenderId(name vrpn.Name) (vrpn.LocalId[vrpn.SenderId], bool) {
	return c.dispatcher.GetSenderId(name)
}

// AddHandler registers handler for every message type, regardless of
// sender.
func (c *Connection) AddHandler(handler dispatch.Handler) (dispatch.Handle, error) {
	return c.dispatcher.AddHandler(handler)
}

// AddTypedHandler registers handler for messages of the given type only.
func (c *Connection) AddTypedHandler(typeId vrpn.LocalId[vrpn.TypeId], handler dispatch.Handler) (dispatch.Handle, error) {
	return c.dispatcher.AddTypedHandler(typeId, handler)
}

// AddTypedHandlerByName registers handler for the type registered under
// name, registering (and describing to every peer) the name first if it is
// new.
func (c *Connection) AddTypedHandlerByName(name vrpn.Name, handler dispatch.Handler) (dispatch.Handle, error) {
	id, err := c.RegisterType(name)
	if err != nil {
		return dispatch.Handle{}, err
	}
	return c.dispatcher.AddTypedHandler(id, handler)
}

// AddTypedHandlerFiltered registers handler for messages of the given type
// from the given sender only.
func (c *Connection) AddTypedHandlerFiltered(typeId vrpn.LocalId[vrpn.TypeId], sender vrpn.LocalId[vrpn.SenderId], handler dispatch.Handler) (dispatch.Handle, error) {
	return c.dispatcher.AddTypedHandlerFiltered(typeId, sender, handler)
}

// RemoveHandler unregisters a previously added handler.
func (c *Connection) RemoveHandler(h dispatch.Handle) error {
	return c.dispatcher.RemoveHandler(h)
}

// PackAllDescriptions snapshots every live endpoint's translation tables
// and re-announces every locally-known name, used after a reconnect.
func (c *Connection) PackAllDescriptions() error {
	var firstErr error
	for _, ep := range c.liveEndpoints() {
		if err := ep.PackAllDescriptions(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PackMessageBody sends body as msgType/sender to every live endpoint.
// A send failure on one endpoint is logged but never prevents delivery to
// the others. Ids that were never resolved to a registration (still
// carrying the invalid marker) are dropped before anything hits the wire.
func (c *Connection) PackMessageBody(msgType vrpn.LocalId[vrpn.TypeId], sender vrpn.LocalId[vrpn.SenderId], body []byte, class vrpn.ClassOfService) {
	if !msgType.Id.IsValid() || !sender.Id.IsValid() {
		logger.Printf(logger.WARN, "[%s] dropping send with unregistered type/sender id\n", c.tag)
		return
	}
	now := time.Now()
	for _, ep := range c.liveEndpoints() {
		if err := ep.SendMessage(c.sig, now, msgType, sender, body, class); err != nil {
			logger.Printf(logger.WARN, "[%s] send failed on endpoint: %s\n", c.tag, err)
		}
	}
}

// NumEndpoints returns the number of currently live endpoints.
func (c *Connection) NumEndpoints() (n int) {
	c.endpoints.Process(func(pid int) error {
		n = c.endpoints.Size()
		return nil
	}, true)
	return
}

// Close shuts the connection down: it fires the shared signaller to
// interrupt any in-flight Read/Write, stops the acceptor (if any), and
// closes every live endpoint (which also unblocks its pump goroutine, in
// case the blocked call started before the signal was raised). Close
// waits for every pump to notice and exit before returning.
func (c *Connection) Close() error {
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return nil
	}
	c.closed = true
	c.mtx.Unlock()
	eps := c.liveEndpoints()

	c.sig.Send(true)
	if c.acceptor != nil {
		if err := c.acceptor.close(); err != nil {
			logger.Printf(logger.WARN, "[%s] closing acceptor: %s\n", c.tag, err)
		}
	}
	for _, ep := range eps {
		ep.Close()
	}
	c.wg.Wait()
	logger.Printf(logger.INFO, "[%s] connection closed\n", c.tag)
	return nil
}

func (c *Connection) isClosed() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.closed
}

// addEndpoint replays every already-registered user type and sender into
// ep, installs it into the endpoint table under a fresh process-unique
// id, fires the appropriate connection-lifecycle notification, and starts
// its pump goroutine.
func (c *Connection) addEndpoint(ep *endpoint.Endpoint) {
	c.dispatcher.EachUserSender(func(id vrpn.LocalId[vrpn.SenderId], name vrpn.Name) {
		if err := ep.BindLocalSender(id, name); err != nil {
			logger.Printf(logger.ERROR, "[%s] replaying sender %q: %s\n", c.tag, name, err)
		}
	})
	c.dispatcher.EachUserType(func(id vrpn.LocalId[vrpn.TypeId], name vrpn.Name) {
		if err := ep.BindLocalType(id, name); err != nil {
			logger.Printf(logger.ERROR, "[%s] replaying type %q: %s\n", c.tag, name, err)
		}
	})

	id := util.NextID()
	var live int
	c.endpoints.Process(func(pid int) error {
		c.endpoints.Put(id, ep, pid)
		live = c.endpoints.Size()
		return nil
	}, false)

	logger.Printf(logger.DBG, "[%s] endpoint %d attached (%d live)\n", c.tag, id, live)
	if live == 1 {
		c.fireLifecycle(dispatch.GotFirstConnectionName)
	} else {
		c.fireLifecycle(dispatch.GotConnectionName)
	}

	c.wg.Add(1)
	go c.pump(id, ep)
}

// pump drives one endpoint's ingress/egress loop until it reports a
// terminal error (remote disconnect, codec failure, or interruption by
// Close), then retires its table entry. A message referencing an id the peer has
// not described yet is a per-message problem, not a channel one: it is
// logged and the loop keeps going.
func (c *Connection) pump(id int, ep *endpoint.Endpoint) {
	defer c.wg.Done()
	for {
		err := ep.Poll(c.sig)
		if err == nil {
			continue
		}
		if errors.Is(err, endpoint.ErrUndescribedType) || errors.Is(err, endpoint.ErrUndescribedSender) {
			logger.Printf(logger.WARN, "[%s] endpoint %d: %s\n", c.tag, id, err)
			continue
		}
		logger.Printf(logger.DBG, "[%s] endpoint %d closing: %s\n", c.tag, id, err)
		break
	}
	c.removeEndpoint(id)
}

func (c *Connection) removeEndpoint(id int) {
	var live int
	c.endpoints.Process(func(pid int) error {
		c.endpoints.Delete(id, pid)
		live = c.endpoints.Size()
		return nil
	}, false)

	if live == 0 {
		c.fireLifecycle(dispatch.DroppedLastConnectionName)
	} else {
		c.fireLifecycle(dispatch.DroppedConnectionName)
	}
}

func (c *Connection) liveEndpoints() (list []*endpoint.Endpoint) {
	c.endpoints.ProcessRange(func(_ int, ep *endpoint.Endpoint, _ int) error {
		list = append(list, ep)
		return nil
	}, true)
	return
}

// fireLifecycle dispatches one of the four connection-lifecycle
// notifications to application handlers exactly as it would any ordinary
// message, attributed to the CONTROL sender.
func (c *Connection) fireLifecycle(name vrpn.Name) {
	typeId, ok := c.dispatcher.GetTypeId(name)
	if !ok {
		return
	}
	senderId, _ := c.dispatcher.GetSenderId(dispatch.ControlSenderName)
	c.dispatcher.Call(dispatch.Message{
		Time:   time.Now(),
		Type:   typeId,
		Sender: senderId,
	})
}
