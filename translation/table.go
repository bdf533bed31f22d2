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

// Package translation implements the bidirectional name/remote-id/local-id
// mapping an Endpoint keeps for both its type and sender namespaces.
package translation

import (
	"errors"
	"sync"

	vrpn "vrpn"
)

// ErrMismatchedName is returned by BindLocalId when name is already bound
// to a different local id than the caller is asking to bind it to.
var ErrMismatchedName = errors.New("translation: name bound to a different local id")

// id is the constraint satisfied by vrpn.TypeId and vrpn.SenderId: the two
// namespaces a Table can be instantiated over.
type id interface {
	vrpn.TypeId | vrpn.SenderId
}

// entry is a single local-id slot: its name, as learned locally or from the
// remote peer's description message.
type entry struct {
	name vrpn.Name
}

// Table maps names to local ids (this endpoint's own numbering) and, once
// the remote side has described itself, remote ids to those same local
// ids. Local ids are never reused: a removed or superseded mapping leaves
// its slot behind rather than shifting indices, since RemoteId values
// that arrived earlier on the wire must keep resolving to the same name.
type Table[T id] struct {
	mtx        sync.RWMutex
	byLocal    []entry                    // index is the local id
	byName     map[vrpn.Name]vrpn.LocalId[T]
	remoteToLo map[T]vrpn.LocalId[T] // remote-id -> local-id, once known
}

// New allocates an empty translation table.
func New[T id]() *Table[T] {
	return &Table[T]{
		byName:     make(map[vrpn.Name]vrpn.LocalId[T]),
		remoteToLo: make(map[T]vrpn.LocalId[T]),
	}
}

// AddLocalId registers name under a freshly allocated local id and returns
// it, or returns the existing local id if name is already known. Mirrors
// register_type/register_sender's find-or-insert semantics.
func (t *Table[T]) AddLocalId(name vrpn.Name) vrpn.LocalId[T] {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if id, ok := t.byName[name]; ok {
		return id
	}
	local := vrpn.LocalId[T]{Id: T(len(t.byLocal))}
	t.byLocal = append(t.byLocal, entry{name: name})
	t.byName[name] = local
	return local
}

// BindLocalId registers name under an explicit local id rather than
// self-allocating one, for callers (a Connection pushing its shared
// TypeDispatcher numbering down into each Endpoint) that own the id space
// themselves. Returns (true, nil) if name was newly inserted, (false, nil)
// if name was already bound to this exact id, or (false, ErrMismatchedName)
// if name is already bound to a different id.
func (t *Table[T]) BindLocalId(name vrpn.Name, local vrpn.LocalId[T]) (bool, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if existing, ok := t.byName[name]; ok {
		if existing != local {
			return false, ErrMismatchedName
		}
		return false, nil
	}
	idx := int(local.Id)
	for len(t.byLocal) <= idx {
		t.byLocal = append(t.byLocal, entry{})
	}
	t.byLocal[idx] = entry{name: name}
	t.byName[name] = local
	return true, nil
}

// LocalIdForName returns the local id registered for name, if any.
func (t *Table[T]) LocalIdForName(name vrpn.Name) (vrpn.LocalId[T], bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}

// NameForLocalId returns the name registered under a local id.
func (t *Table[T]) NameForLocalId(local vrpn.LocalId[T]) (vrpn.Name, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	idx := int(local.Id)
	if idx < 0 || idx >= len(t.byLocal) {
		return "", false
	}
	return t.byLocal[idx].name, true
}

// AddRemoteEntry records that the remote peer uses remote to refer to
// name. If this endpoint does not yet have a local id for name, one is
// allocated (mirroring the C++ reference's "learn as you go" behaviour).
// A given remote id maps to at most one local id; re-describing the same
// remote id simply overwrites the mapping.
//
// This self-allocates from the table's own counter and is only correct
// for a table with no outside authority over its local numbering; an
// Endpoint's type/sender tables are not such a table (their local ids
// must agree with the connection's shared TypeDispatcher numbering), so
// they use BindRemoteEntry instead.
func (t *Table[T]) AddRemoteEntry(remote vrpn.RemoteId[T], name vrpn.Name) vrpn.LocalId[T] {
	local := t.AddLocalId(name)
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.remoteToLo[remote.Id] = local
	return local
}

// BindRemoteEntry records that the remote peer uses remote to refer to
// name, at the explicit local id supplied by the caller's own namespace
// authority (a connection's shared TypeDispatcher having just resolved or
// allocated one via RegisterType/RegisterSender) rather than one this
// table self-allocates. Fails with ErrMismatchedName if name is already
// bound here to a different local id.
func (t *Table[T]) BindRemoteEntry(remote vrpn.RemoteId[T], name vrpn.Name, local vrpn.LocalId[T]) error {
	if _, err := t.BindLocalId(name, local); err != nil {
		return err
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.remoteToLo[remote.Id] = local
	return nil
}

// MapToLocalId resolves a remote id to this endpoint's local id for the
// same name, if the remote side has described it already.
func (t *Table[T]) MapToLocalId(remote vrpn.RemoteId[T]) (vrpn.LocalId[T], bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	local, ok := t.remoteToLo[remote.Id]
	return local, ok
}

// Clear drops all remote-id mappings, e.g. on reconnect; local ids and
// names survive so application code need not re-register anything.
func (t *Table[T]) Clear() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.remoteToLo = make(map[T]vrpn.LocalId[T])
}

// Len returns the number of locally-known names in this namespace.
func (t *Table[T]) Len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.byLocal)
}

// Each calls fn once for every locally-registered (local id, name) pair,
// in local-id order, used to pack description messages for a newly
// connected peer. Slots that BindLocalId padded below a higher id, and
// that no name was ever bound to, are skipped.
func (t *Table[T]) Each(fn func(vrpn.LocalId[T], vrpn.Name)) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	for i, e := range t.byLocal {
		if e.name == "" {
			continue
		}
		fn(vrpn.LocalId[T]{Id: T(i)}, e.name)
	}
}
