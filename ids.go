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

// Package vrpn implements the core identifiers shared by every package of
// the runtime: type and sender IDs, and the generic local/remote wrapper
// types used by translation tables to keep a peer's own numbering scheme
// separate from its connection partner's.
package vrpn

import "fmt"

// TypeId identifies a message type, either as known locally (assigned by
// a TypeDispatcher) or as sent on the wire by a remote peer. A negative
// value of -1 marks "no type" / "not yet registered".
type TypeId int32

// SenderId identifies the sender of a message, with the same local/remote
// duality as TypeId.
type SenderId int32

// InvalidID marks an id that has not been resolved to a concrete value.
const InvalidID = -1

// IsValid reports whether the id refers to a concrete, registered type.
func (t TypeId) IsValid() bool { return t >= 0 }

// IsValid reports whether the id refers to a concrete, registered sender.
func (s SenderId) IsValid() bool { return s >= 0 }

func (t TypeId) String() string   { return fmt.Sprintf("TypeId(%d)", int32(t)) }
func (s SenderId) String() string { return fmt.Sprintf("SenderId(%d)", int32(s)) }

// Name is the human-readable label under which a type or sender is
// registered ("vrpn_Tracker Position", "Tracker0", ...).
type Name string

// LocalId wraps an id that is meaningful in this endpoint's own namespace:
// indices it assigned itself via register_type/register_sender.
type LocalId[T TypeId | SenderId] struct {
	Id T
}

// RemoteId wraps an id as it was announced by the remote peer on the wire;
// it must never be used to index this endpoint's own tables directly.
type RemoteId[T TypeId | SenderId] struct {
	Id T
}

// ClassOfService flags the delivery guarantees requested for a message.
type ClassOfService uint32

// Known classes of service, in increasing order of guarantee.
const (
	ClassLowLatency   ClassOfService = 1 << iota // unreliable, unordered (UDP side channel)
	ClassFixedLatency                            // reliable, timestamp-ordered
	ClassReliable                                // reliable, delivery-ordered (TCP channel)
)
