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

import "errors"

var (
	ErrBadMagicCookie  = errors.New("connection: peer sent an unrecognized magic cookie")
	ErrIncompleteWrite = errors.New("connection: short write during handshake")
	ErrAlreadyRunning  = errors.New("connection: server already started")
	ErrNotServerMode   = errors.New("connection: no acceptor on a client-mode connection")
	ErrClosed          = errors.New("connection: connection is shut down")
)
