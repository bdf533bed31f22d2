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

package dispatch

import (
	"sync"

	"github.com/bfix/gospel/logger"

	vrpn "vrpn"
)

// ControlSenderName is the sender every connection-lifecycle notification
// is attributed to; it is never described to or by a remote peer.
const ControlSenderName = vrpn.Name("VRPN Control")

// Connection-lifecycle notification type names. A Connection calls these
// through the dispatcher like any other type so application code learns
// about new or dropped peers via the same AddTypedHandler mechanism it
// uses for ordinary messages. These are distinct from the wire-level
// system message types in package message, which an Endpoint consumes
// directly rather than routing through a TypeDispatcher.
const (
	GotFirstConnectionName     = vrpn.Name("VRPN_Connection_Got_First_Connection")
	GotConnectionName          = vrpn.Name("VRPN_Connection_Got_Connection")
	DroppedConnectionName      = vrpn.Name("VRPN_Connection_Dropped_Connection")
	DroppedLastConnectionName  = vrpn.Name("VRPN_Connection_Dropped_Last_Connection")
)

var lifecycleTypeNames = [...]vrpn.Name{
	GotFirstConnectionName,
	GotConnectionName,
	DroppedConnectionName,
	DroppedLastConnectionName,
}

// TypeDispatcher routes decoded messages to the handlers registered for
// their type, plus a generic collection that fires for every type
// regardless of registration. Type and sender names are interned here so
// the rest of the runtime can work with cheap integer ids instead of
// strings.
type TypeDispatcher struct {
	mtx sync.Mutex

	types       []*CallbackCollection
	typeNames   []vrpn.Name // parallel to types, for ordered enumeration
	typesByName map[vrpn.Name]vrpn.LocalId[vrpn.TypeId]

	generic CallbackCollection

	senders      []vrpn.Name
	sendersByName map[vrpn.Name]vrpn.LocalId[vrpn.SenderId]
}

// NewTypeDispatcher returns a dispatcher with the CONTROL sender and the
// four connection-lifecycle types pre-registered, mirroring the fixed
// bootstrap set every peer agrees on without exchanging descriptions.
func NewTypeDispatcher() *TypeDispatcher {
	d := &TypeDispatcher{
		typesByName:   make(map[vrpn.Name]vrpn.LocalId[vrpn.TypeId]),
		sendersByName: make(map[vrpn.Name]vrpn.LocalId[vrpn.SenderId]),
	}
	d.addSender(ControlSenderName)
	for _, name := range lifecycleTypeNames {
		d.addType(name)
	}
	return d
}

func (d *TypeDispatcher) addType(name vrpn.Name) vrpn.LocalId[vrpn.TypeId] {
	id := vrpn.LocalId[vrpn.TypeId]{Id: vrpn.TypeId(len(d.types))}
	d.types = append(d.types, new(CallbackCollection))
	d.typeNames = append(d.typeNames, name)
	d.typesByName[name] = id
	return id
}

func (d *TypeDispatcher) addSender(name vrpn.Name) vrpn.LocalId[vrpn.SenderId] {
	id := vrpn.LocalId[vrpn.SenderId]{Id: vrpn.SenderId(len(d.senders))}
	d.senders = append(d.senders, name)
	d.sendersByName[name] = id
	return id
}

// maxMappings caps how many names either namespace may hold. Remote
// descriptions register names through the same path as local code, so an
// unbounded namespace would let a misbehaving peer grow the type table
// without limit.
const maxMappings = 1 << 20

// RegisterType finds or creates a local type id for name, reporting
// whether the registration is new. Fails with ErrTooManyMappings once the
// type namespace is full.
func (d *TypeDispatcher) RegisterType(name vrpn.Name) (vrpn.LocalId[vrpn.TypeId], bool, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if id, ok := d.typesByName[name]; ok {
		return id, false, nil
	}
	if len(d.types) >= maxMappings {
		return vrpn.LocalId[vrpn.TypeId]{Id: vrpn.InvalidID}, false, ErrTooManyMappings
	}
	id := d.addType(name)
	logger.Printf(logger.DBG, "[dispatch] registered type %q as %v\n", name, id.Id)
	return id, true, nil
}

// RegisterSender finds or creates a local sender id for name, reporting
// whether the registration is new. Fails with ErrTooManyMappings once the
// sender namespace is full.
func (d *TypeDispatcher) RegisterSender(name vrpn.Name) (vrpn.LocalId[vrpn.SenderId], bool, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if id, ok := d.sendersByName[name]; ok {
		return id, false, nil
	}
	if len(d.senders) >= maxMappings {
		return vrpn.LocalId[vrpn.SenderId]{Id: vrpn.InvalidID}, false, ErrTooManyMappings
	}
	id := d.addSender(name)
	logger.Printf(logger.DBG, "[dispatch] registered sender %q as %v\n", name, id.Id)
	return id, true, nil
}

// GetTypeId looks up an already-registered type by name.
func (d *TypeDispatcher) GetTypeId(name vrpn.Name) (vrpn.LocalId[vrpn.TypeId], bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	id, ok := d.typesByName[name]
	return id, ok
}

// GetSenderId looks up an already-registered sender by name.
func (d *TypeDispatcher) GetSenderId(name vrpn.Name) (vrpn.LocalId[vrpn.SenderId], bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	id, ok := d.sendersByName[name]
	return id, ok
}

// AddHandler registers handler to fire for every message of every type,
// ahead of any type-specific handlers (mirroring the generic_callbacks
// collection firing before the per-type collection on every Call).
func (d *TypeDispatcher) AddHandler(handler Handler) (Handle, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	inner, err := d.generic.Add(handler)
	if err != nil {
		return Handle{}, err
	}
	return Handle{inner: inner}, nil
}

// AddTypedHandler registers handler for messages of the given type only.
// Fails with ErrInvalidId if typeId was never registered here.
func (d *TypeDispatcher) AddTypedHandler(typeId vrpn.LocalId[vrpn.TypeId], handler Handler) (Handle, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	idx := int(typeId.Id)
	if !typeId.Id.IsValid() || idx >= len(d.types) {
		return Handle{}, ErrInvalidId
	}
	inner, err := d.types[idx].Add(handler)
	if err != nil {
		return Handle{}, err
	}
	return Handle{HasType: true, Type: typeId, inner: inner}, nil
}

// AddTypedHandlerFiltered registers handler for messages of the given
// type, from the given sender only.
func (d *TypeDispatcher) AddTypedHandlerFiltered(typeId vrpn.LocalId[vrpn.TypeId], sender vrpn.LocalId[vrpn.SenderId], handler Handler) (Handle, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	idx := int(typeId.Id)
	if !typeId.Id.IsValid() || idx >= len(d.types) {
		return Handle{}, ErrInvalidId
	}
	inner, err := d.types[idx].AddFiltered(handler, sender)
	if err != nil {
		return Handle{}, err
	}
	return Handle{HasType: true, Type: typeId, inner: inner}, nil
}

// AddHandlerForName registers handler for the type registered under name,
// registering the name first if it is new. This is the late-bound variant
// for callers that know a type by its wire name rather than a previously
// obtained id.
func (d *TypeDispatcher) AddHandlerForName(name vrpn.Name, handler Handler) (Handle, error) {
	id, _, err := d.RegisterType(name)
	if err != nil {
		return Handle{}, err
	}
	return d.AddTypedHandler(id, handler)
}

// RemoveHandler unregisters a previously added handler. Fails with
// ErrHandlerNotFound if it was already removed or the handle is stale.
func (d *TypeDispatcher) RemoveHandler(h Handle) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if h.HasType {
		idx := int(h.Type.Id)
		if idx < 0 || idx >= len(d.types) {
			return ErrHandlerNotFound
		}
		return d.types[idx].Remove(h.inner)
	}
	return d.generic.Remove(h.inner)
}

// Call dispatches msg to the generic collection first, then to the
// collection registered for msg.Type, mirroring call()'s fixed ordering
// in the reference implementation. A message whose type id falls outside
// the registered range is dropped outright, before either collection
// fires. Handler errors are logged but never abort dispatch to the
// remaining handlers.
func (d *TypeDispatcher) Call(msg Message) {
	d.mtx.Lock()
	idx := int(msg.Type.Id)
	if !msg.Type.Id.IsValid() || idx >= len(d.types) {
		d.mtx.Unlock()
		logger.Printf(logger.WARN, "[dispatch] dropping message with invalid type id %v\n", msg.Type.Id)
		return
	}
	typed := d.types[idx]
	d.mtx.Unlock()

	for _, err := range d.generic.Call(msg) {
		logger.Printf(logger.ERROR, "[dispatch] generic handler error: %s\n", err.Error())
	}
	for _, err := range typed.Call(msg) {
		logger.Printf(logger.ERROR, "[dispatch] handler error for type %v: %s\n", msg.Type.Id, err.Error())
	}
}

// TypeName returns the name registered for a local type id.
func (d *TypeDispatcher) TypeName(id vrpn.LocalId[vrpn.TypeId]) (vrpn.Name, bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	idx := int(id.Id)
	if idx < 0 || idx >= len(d.typeNames) {
		return "", false
	}
	return d.typeNames[idx], true
}

// EachUserType calls fn once for every application-registered type, in
// registration order, skipping the connection-lifecycle types installed by
// NewTypeDispatcher. Used to bring a newly attached Endpoint's own
// translation table up to date with everything already registered on this
// connection.
func (d *TypeDispatcher) EachUserType(fn func(vrpn.LocalId[vrpn.TypeId], vrpn.Name)) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	for i := len(lifecycleTypeNames); i < len(d.types); i++ {
		fn(vrpn.LocalId[vrpn.TypeId]{Id: vrpn.TypeId(i)}, d.typeNames[i])
	}
}

// EachUserSender calls fn once for every application-registered sender, in
// registration order, skipping the pre-registered CONTROL sender.
func (d *TypeDispatcher) EachUserSender(fn func(vrpn.LocalId[vrpn.SenderId], vrpn.Name)) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	for i := 1; i < len(d.senders); i++ {
		fn(vrpn.LocalId[vrpn.SenderId]{Id: vrpn.SenderId(i)}, d.senders[i])
	}
}

// SenderName returns the name registered for a local sender id.
func (d *TypeDispatcher) SenderName(id vrpn.LocalId[vrpn.SenderId]) (vrpn.Name, bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	idx := int(id.Id)
	if idx < 0 || idx >= len(d.senders) {
		return "", false
	}
	return d.senders[idx], true
}
