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
	"bytes"
	"encoding/binary"
	"time"

	"vrpn/transport"
	"vrpn/util"

	"github.com/bfix/gospel/concurrent"
)

// magicCookie identifies the wire protocol this runtime speaks, mirroring
// the fixed cookie the legacy VRPN implementation exchanges before any
// framed message flows. Peers that do not share the cookie and major
// version are rejected before a single Endpoint is ever created.
var magicCookie = [4]byte{'v', 'r', 'p', 'n'}

const (
	protocolMajor uint16 = 7
	protocolMinor uint16 = 35
)

// defaultHandshakeTimeout bounds how long a single accepted socket is given
// to complete the cookie exchange before it is abandoned; a peer stuck here
// would otherwise hold the goroutine handshakeAndInstall spawned for it
// open forever without ever reaching the endpoints vector.
var defaultHandshakeTimeout = util.NewRelativeTime(5 * time.Second)

// handshakeSize is the fixed number of bytes exchanged in each direction:
// the magic cookie plus major/minor version, big-endian.
const handshakeSize = len(magicCookie) + 2 + 2

func encodeHandshake() []byte {
	buf := make([]byte, handshakeSize)
	copy(buf[0:4], magicCookie[:])
	binary.BigEndian.PutUint16(buf[4:6], protocolMajor)
	binary.BigEndian.PutUint16(buf[6:8], protocolMinor)
	return buf
}

func readHandshake(ch transport.Channel, sig *concurrent.Signaller) error {
	buf := make([]byte, handshakeSize)
	got := 0
	for got < len(buf) {
		n, err := ch.Read(buf[got:], sig)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBadMagicCookie
		}
		got += n
	}
	if !bytes.Equal(buf[0:4], magicCookie[:]) {
		return ErrBadMagicCookie
	}
	// Minor version mismatches are tolerated (the reference protocol is
	// backwards compatible within a major version); only the cookie and
	// major version gate the handshake.
	major := binary.BigEndian.Uint16(buf[4:6])
	if major != protocolMajor {
		return ErrBadMagicCookie
	}
	return nil
}

func writeHandshake(ch transport.Channel, sig *concurrent.Signaller) error {
	buf := encodeHandshake()
	n, err := ch.Write(buf, sig)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return ErrIncompleteWrite
	}
	return nil
}

// withHandshakeTimeout runs fn against its own Signaller, firing it after
// timeout elapses so a peer that never completes the cookie exchange does
// not tie up the goroutine indefinitely. This signaller is private to the
// handshake attempt: it is never the connection-wide sig, so a slow
// handshake cannot be mistaken for (or interfere with) a connection-wide
// shutdown.
func withHandshakeTimeout(timeout util.RelativeTime, fn func(*concurrent.Signaller) error) error {
	sig := concurrent.NewSignaller()
	timer := time.AfterFunc(time.Duration(timeout.Val)*time.Millisecond, func() {
		sig.Send(true)
	})
	defer timer.Stop()
	return fn(sig)
}

// handshakeServer performs the accepting side of the cookie exchange: VRPN
// has the acceptor write first, then read the connecting peer's cookie.
func handshakeServer(ch transport.Channel, timeout util.RelativeTime) error {
	return withHandshakeTimeout(timeout, func(sig *concurrent.Signaller) error {
		if err := writeHandshake(ch, sig); err != nil {
			return err
		}
		return readHandshake(ch, sig)
	})
}

// handshakeClient performs the connecting side: read the acceptor's cookie
// first, then answer with our own.
func handshakeClient(ch transport.Channel, timeout util.RelativeTime) error {
	return withHandshakeTimeout(timeout, func(sig *concurrent.Signaller) error {
		if err := readHandshake(ch, sig); err != nil {
			return err
		}
		return writeHandshake(ch, sig)
	})
}
