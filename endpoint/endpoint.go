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

// Package endpoint implements the per-peer half of a VRPN connection: the
// framed channel to one remote, its two translation tables, and the
// system messages that keep those tables in sync with the far side.
package endpoint

import (
	"sync"
	"time"

	"vrpn/dispatch"
	"vrpn/message"
	"vrpn/transport"
	"vrpn/translation"

	"github.com/bfix/gospel/concurrent"
	"github.com/bfix/gospel/logger"

	vrpn "vrpn"
)

// Endpoint owns one framed channel to a single remote peer, translating
// between that peer's id numbering and this connection's own, and
// forwarding ordinary messages to the shared dispatcher.
type Endpoint struct {
	ch         *transport.MsgChannel
	dispatcher *dispatch.TypeDispatcher

	types   *translation.Table[vrpn.TypeId]
	senders *translation.Table[vrpn.SenderId]

	mtx    sync.Mutex
	outbox [][]byte // encoded system messages queued for the next flush

	// wmtx serializes all writes on the reliable channel, so a flush
	// running on the pump goroutine and a SendMessage issued from an
	// application handler can never interleave their frames.
	wmtx sync.Mutex

	closed bool
}

// New wraps ch as an Endpoint whose ordinary messages are routed through
// dispatcher.
func New(ch *transport.MsgChannel, dispatcher *dispatch.TypeDispatcher) *Endpoint {
	return &Endpoint{
		ch:         ch,
		dispatcher: dispatcher,
		types:      translation.New[vrpn.TypeId](),
		senders:    translation.New[vrpn.SenderId](),
	}
}

// LocalTypeId resolves a type id carried on the wire by the remote peer
// into this endpoint's own local numbering.
func (e *Endpoint) LocalTypeId(remote vrpn.RemoteId[vrpn.TypeId]) (vrpn.LocalId[vrpn.TypeId], bool) {
	return e.types.MapToLocalId(remote)
}

// LocalSenderId resolves a sender id carried on the wire by the remote
// peer into this endpoint's own local numbering.
func (e *Endpoint) LocalSenderId(remote vrpn.RemoteId[vrpn.SenderId]) (vrpn.LocalId[vrpn.SenderId], bool) {
	return e.senders.MapToLocalId(remote)
}

// NewLocalType resolves name to a local type id through this endpoint's
// shared dispatcher (allocating one if name is new) and binds this
// endpoint's own translation table to that same id, announcing it to the
// peer if the binding is new. Self-allocating a local id independent of
// the dispatcher would desynchronize this endpoint's numbering from the
// one dispatcher.Call indexes into, so every id this endpoint hands out
// is minted by the dispatcher.
func (e *Endpoint) NewLocalType(name vrpn.Name) (vrpn.LocalId[vrpn.TypeId], error) {
	id, _, err := e.dispatcher.RegisterType(name)
	if err != nil {
		return id, err
	}
	return id, e.BindLocalType(id, name)
}

// NewLocalSender resolves name to a local sender id the same way
// NewLocalType does.
func (e *Endpoint) NewLocalSender(name vrpn.Name) (vrpn.LocalId[vrpn.SenderId], error) {
	id, _, err := e.dispatcher.RegisterSender(name)
	if err != nil {
		return id, err
	}
	return id, e.BindLocalSender(id, name)
}

// BindLocalType binds name to the given local id instead of self-allocating
// one, for a Connection pushing its shared TypeDispatcher numbering down
// into every Endpoint so the same name carries the same local id on every
// peer connection. Emits a description only the first time name is bound.
func (e *Endpoint) BindLocalType(local vrpn.LocalId[vrpn.TypeId], name vrpn.Name) error {
	isNew, err := e.types.BindLocalId(name, local)
	if err != nil {
		return err
	}
	if !isNew {
		return nil
	}
	return e.PackTypeDescription(local)
}

// BindLocalSender binds name to the given local id; see BindLocalType.
func (e *Endpoint) BindLocalSender(local vrpn.LocalId[vrpn.SenderId], name vrpn.Name) error {
	isNew, err := e.senders.BindLocalId(name, local)
	if err != nil {
		return err
	}
	if !isNew {
		return nil
	}
	return e.PackSenderDescription(local)
}

// PackTypeDescription queues a type_description system message announcing
// the name registered under local.
func (e *Endpoint) PackTypeDescription(local vrpn.LocalId[vrpn.TypeId]) error {
	name, ok := e.types.NameForLocalId(local)
	if !ok {
		return ErrUnknownLocalId
	}
	return e.queueDescription(message.TypeTypeDescription, int32(local.Id), name)
}

// PackSenderDescription queues a sender_description system message
// announcing the name registered under local.
func (e *Endpoint) PackSenderDescription(local vrpn.LocalId[vrpn.SenderId]) error {
	name, ok := e.senders.NameForLocalId(local)
	if !ok {
		return ErrUnknownLocalId
	}
	return e.queueDescription(message.TypeSenderDescription, int32(local.Id), name)
}

func (e *Endpoint) queueDescription(sysType vrpn.TypeId, id int32, name vrpn.Name) error {
	body, err := message.Marshal(&message.DescriptionBody{Id: id, Name: string(name)})
	if err != nil {
		return err
	}
	buf, err := message.Encode(int32(message.ControlSenderId), int32(sysType), time.Now(), body)
	if err != nil {
		return err
	}
	e.mtx.Lock()
	e.outbox = append(e.outbox, buf)
	e.mtx.Unlock()
	return nil
}

// PackAllDescriptions queues descriptions for every locally-known sender
// and type, used to bring a newly connected peer up to date.
func (e *Endpoint) PackAllDescriptions() error {
	var firstErr error
	e.senders.Each(func(id vrpn.LocalId[vrpn.SenderId], _ vrpn.Name) {
		if err := e.PackSenderDescription(id); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	e.types.Each(func(id vrpn.LocalId[vrpn.TypeId], _ vrpn.Name) {
		if err := e.PackTypeDescription(id); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// SendMessage frames and writes an ordinary (non-system) message
// immediately; class is accepted for API fidelity with the wire protocol
// but this runtime only ever has one reliable stream channel to write to.
func (e *Endpoint) SendMessage(sig *concurrent.Signaller, t time.Time, msgType vrpn.LocalId[vrpn.TypeId], sender vrpn.LocalId[vrpn.SenderId], body []byte, class vrpn.ClassOfService) error {
	e.wmtx.Lock()
	defer e.wmtx.Unlock()
	if err := e.flushLocked(sig); err != nil {
		return err
	}
	return e.ch.Send(int32(sender.Id), int32(msgType.Id), t, body, sig)
}

// Flush writes every queued description to the peer right away instead of
// waiting for the next SendMessage or Poll, used by a Connection that has
// just registered a new name and wants the peer to learn it before any
// traffic referencing it.
func (e *Endpoint) Flush(sig *concurrent.Signaller) error {
	return e.flush(sig)
}

// flush writes every queued system message ahead of the next ordinary
// send, preserving the protocol's expectation that description messages
// precede the data that depends on them.
func (e *Endpoint) flush(sig *concurrent.Signaller) error {
	e.wmtx.Lock()
	defer e.wmtx.Unlock()
	return e.flushLocked(sig)
}

// flushLocked is flush with e.wmtx already held.
func (e *Endpoint) flushLocked(sig *concurrent.Signaller) error {
	e.mtx.Lock()
	pending := e.outbox
	e.outbox = nil
	e.mtx.Unlock()

	for _, buf := range pending {
		if _, err := e.ch.WriteFrame(buf, sig); err != nil {
			return err
		}
	}
	return nil
}

// Poll reads and handles exactly one frame from the channel, blocking
// until one arrives or sig interrupts the read. System messages update
// the translation tables (or report disconnect); ordinary messages are
// translated to local ids and routed through the dispatcher.
func (e *Endpoint) Poll(sig *concurrent.Signaller) error {
	if err := e.flush(sig); err != nil {
		return err
	}
	msg, err := e.ch.Receive(sig)
	if err != nil {
		return err
	}
	if msg.IsSystem() {
		return e.handleSystem(msg)
	}
	return e.handleOrdinary(msg)
}

func (e *Endpoint) handleSystem(msg *message.GenericMessage) error {
	switch msg.Type {
	case message.TypeSenderDescription, message.TypeTypeDescription:
		desc := new(message.DescriptionBody)
		if err := message.Unmarshal(desc, msg.Body); err != nil {
			return err
		}
		name := vrpn.Name(desc.Name)
		if msg.Type == message.TypeSenderDescription {
			local, _, err := e.dispatcher.RegisterSender(name)
			if err != nil {
				return err
			}
			remote := vrpn.RemoteId[vrpn.SenderId]{Id: vrpn.SenderId(desc.Id)}
			if err := e.senders.BindRemoteEntry(remote, name, local); err != nil {
				return err
			}
			logger.Printf(logger.DBG, "[endpoint] learned sender %q as remote id %d -> local %v\n", name, desc.Id, local.Id)
		} else {
			local, _, err := e.dispatcher.RegisterType(name)
			if err != nil {
				return err
			}
			remote := vrpn.RemoteId[vrpn.TypeId]{Id: vrpn.TypeId(desc.Id)}
			if err := e.types.BindRemoteEntry(remote, name, local); err != nil {
				return err
			}
			logger.Printf(logger.DBG, "[endpoint] learned type %q as remote id %d -> local %v\n", name, desc.Id, local.Id)
		}
		return nil
	case message.TypeDisconnectMessage:
		logger.Println(logger.INFO, "[endpoint] remote requested disconnect")
		e.closed = true
		return ErrRemoteDisconnected
	case message.TypeUDPDescription, message.TypeLogDescription:
		// Accepted for protocol fidelity; this runtime has no low-latency
		// UDP channel or logging subsystem to configure from them.
		return nil
	default:
		logger.Printf(logger.WARN, "[endpoint] unhandled system type %v\n", msg.Type)
		return nil
	}
}

func (e *Endpoint) handleOrdinary(msg *message.GenericMessage) error {
	localType, ok := e.LocalTypeId(vrpn.RemoteId[vrpn.TypeId]{Id: msg.Type})
	if !ok {
		logger.Printf(logger.WARN, "[endpoint] message for undescribed type %v dropped\n", msg.Type)
		return ErrUndescribedType
	}
	localSender, ok := e.LocalSenderId(vrpn.RemoteId[vrpn.SenderId]{Id: msg.Sender})
	if !ok {
		logger.Printf(logger.WARN, "[endpoint] message from undescribed sender %v dropped\n", msg.Sender)
		return ErrUndescribedSender
	}
	e.dispatcher.Call(dispatch.Message{
		Time:   msg.Header.Timestamp(),
		Sender: localSender,
		Type:   localType,
		Body:   msg.Body,
	})
	return nil
}

// SendDisconnect queues an orderly disconnect notice and flushes it.
func (e *Endpoint) SendDisconnect(sig *concurrent.Signaller) error {
	body, err := message.Marshal(&message.DisconnectMessageBody{})
	if err != nil {
		return err
	}
	buf, err := message.Encode(int32(message.ControlSenderId), int32(message.TypeDisconnectMessage), time.Now(), body)
	if err != nil {
		return err
	}
	e.mtx.Lock()
	e.outbox = append(e.outbox, buf)
	e.mtx.Unlock()
	return e.flush(sig)
}

// Close closes the underlying channel.
func (e *Endpoint) Close() error {
	e.closed = true
	return e.ch.Close()
}

// IsClosed reports whether this endpoint has received a disconnect from
// the peer or has been closed with Close. Sending a disconnect with
// SendDisconnect does not mark it closed.
func (e *Endpoint) IsClosed() bool {
	return e.closed
}
