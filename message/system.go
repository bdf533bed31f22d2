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

package message

// Bodies for the five reserved system messages a connection exchanges as
// peers learn each other's name -> id mappings. These are marshaled with
// the same reflection-based Marshal/Unmarshal used for ordinary messages,
// the struct tags giving the field order and endianness.

// DescriptionBody announces that Id is the remote-side number for Name,
// used for both vrpn_Base sender_description and type_description.
type DescriptionBody struct {
	Id   int32 `order:"big"`
	Name string
}

// UDPDescriptionBody announces the optional low-latency channel's port.
type UDPDescriptionBody struct {
	Port int32 `order:"big"`
}

// LogDescriptionBody carries logging configuration; an Endpoint accepts a
// log description without parsing it, forwarding it, or acting on it.
type LogDescriptionBody struct {
	Mode           int32 `order:"big"`
	InLogFileName  string
	OutLogFileName string
}

// DisconnectMessageBody is empty; its mere arrival signals the remote
// side is closing the connection in an orderly fashion.
type DisconnectMessageBody struct{}
