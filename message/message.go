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

// Package message defines the wire representation of VRPN messages: the
// fixed header every message carries and the system message types a
// connection exchanges before user traffic starts flowing.
package message

import (
	"errors"

	vrpn "vrpn"
)

// Error codes
var (
	ErrMsgHeaderTooSmall    = errors.New("message header too small")
	ErrMsgBodyTruncated     = errors.New("message body truncated")
	ErrMsgLengthOverflow    = errors.New("message length exceeds maximum frame size")
	ErrMsgMissingTerminator = errors.New("message frame missing nul terminator")
)

// MaxBodyLength bounds a single message body; the reference implementation
// has no hard cap, but an unbounded length prefix turns a corrupt stream
// into an out-of-memory allocation. 16 MiB is generous for telemetry.
const MaxBodyLength = 16 << 20

// System sender. Every connection pre-registers this sender so peers can
// exchange SenderDescription/TypeDescription/... before user code ever
// calls RegisterSender.
const (
	ControlSenderName = vrpn.Name("VRPN Control")
	// ControlSenderId is the wire sender id reserved for system messages;
	// it precedes any sender a connection registers for itself.
	ControlSenderId int32 = 0
)

// System message types, always present and always negative so they can
// never collide with a locally- or remotely-assigned user type id.
const (
	TypeSenderDescription  vrpn.TypeId = -1 // announces a sender name -> remote id mapping
	TypeTypeDescription    vrpn.TypeId = -2 // announces a message type name -> remote id mapping
	TypeUDPDescription     vrpn.TypeId = -3 // announces the port of an optional low-latency channel
	TypeLogDescription     vrpn.TypeId = -4 // announces logging mode/filenames (carried, not acted upon)
	TypeDisconnectMessage  vrpn.TypeId = -5 // announces an orderly shutdown of the endpoint
)

// SystemTypeNames maps the reserved system types to their wire names. The
// types themselves are consumed by the Endpoint and are never registered
// with a TypeDispatcher.
var SystemTypeNames = map[vrpn.TypeId]vrpn.Name{
	TypeSenderDescription: "vrpn_Base sender_description",
	TypeTypeDescription:   "vrpn_Base type_description",
	TypeUDPDescription:    "vrpn_Base udp_description",
	TypeLogDescription:    "vrpn_Base log_description",
	TypeDisconnectMessage: "vrpn_Base disconnect_message",
}

// Header is the fixed-size preamble of every VRPN message on the wire.
// Integer fields are big-endian per the protocol, matching the struct-tag
// convention the rest of the stack uses for binary layout.
type Header struct {
	Seconds      int32 `order:"big"`
	Microseconds int32 `order:"big"`
	Sender       int32 `order:"big"`
	Type         int32 `order:"big"`
}

// GenericMessage is a fully decoded VRPN message: a header plus its body,
// with the sender/type ids exactly as carried on the wire (the sending
// peer's numbering); an Endpoint maps them to local ids before dispatch.
type GenericMessage struct {
	Header Header
	Sender vrpn.SenderId
	Type   vrpn.TypeId
	Body   []byte
}

// IsSystem reports whether this message is one of the reserved system
// messages (descriptions, disconnect, ...) rather than user payload.
func (m *GenericMessage) IsSystem() bool {
	return m.Type < 0
}
