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

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	vrpn "vrpn"
)

// headerWireSize is the marshaled size of Header: two timestamp fields,
// sender and type, all 4-byte big-endian integers.
const headerWireSize = 16

// frameLen returns the value carried in the 4-byte length prefix: the
// number of bytes in header + body + the trailing nul terminator. Padding
// is never counted, since the reader derives it from this value.
func frameLen(bodyLen int) uint32 {
	return uint32(headerWireSize + bodyLen + 1)
}

// padding returns how many zero bytes follow the terminator so the whole
// frame (length prefix included) lands on an 8-byte boundary.
func padding(length uint32) int {
	total := 4 + int(length)
	return (8 - total%8) % 8
}

// Encode serializes sender, msgType, timestamp and body into a framed VRPN
// message ready to write to a reliable channel.
func Encode(sender, msgType int32, t time.Time, body []byte) ([]byte, error) {
	if len(body) > MaxBodyLength {
		return nil, ErrMsgLengthOverflow
	}
	length := frameLen(len(body))
	pad := padding(length)
	buf := make([]byte, 4+int(length)+pad)

	binary.BigEndian.PutUint32(buf[0:4], length)
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(t.Unix())))
	binary.BigEndian.PutUint32(buf[8:12], uint32(int32(t.Nanosecond()/1000)))
	binary.BigEndian.PutUint32(buf[12:16], uint32(sender))
	binary.BigEndian.PutUint32(buf[16:20], uint32(msgType))
	copy(buf[20:20+len(body)], body)
	// buf[20+len(body)] is the nul terminator; the trailing pad bytes are
	// already zero from make([]byte, ...).
	return buf, nil
}

// Decode reads one complete framed message from r, blocking until the
// frame (and its padding) has been fully consumed.
func Decode(r io.Reader) (*GenericMessage, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < headerWireSize+1 {
		return nil, ErrMsgHeaderTooSmall
	}
	bodyLen := int(length) - headerWireSize - 1
	if bodyLen > MaxBodyLength {
		return nil, ErrMsgLengthOverflow
	}

	rest := make([]byte, int(length))
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("reading message frame: %w", ErrMsgBodyTruncated)
	}

	hdr := Header{
		Seconds:      int32(binary.BigEndian.Uint32(rest[0:4])),
		Microseconds: int32(binary.BigEndian.Uint32(rest[4:8])),
		Sender:       int32(binary.BigEndian.Uint32(rest[8:12])),
		Type:         int32(binary.BigEndian.Uint32(rest[12:16])),
	}
	body := make([]byte, bodyLen)
	copy(body, rest[16:16+bodyLen])
	// The nul terminator directly after the body is part of the frame but
	// never of the payload; a frame without it is malformed.
	if rest[16+bodyLen] != 0 {
		return nil, ErrMsgMissingTerminator
	}

	if pad := padding(length); pad > 0 {
		padBuf := make([]byte, pad)
		if _, err := io.ReadFull(r, padBuf); err != nil {
			return nil, fmt.Errorf("reading frame padding: %w", ErrMsgBodyTruncated)
		}
	}

	return &GenericMessage{
		Header: hdr,
		Sender: vrpn.SenderId(hdr.Sender),
		Type:   vrpn.TypeId(hdr.Type),
		Body:   body,
	}, nil
}

// Timestamp reconstructs a time.Time from the header's seconds/microseconds
// pair, mirroring how the header was populated by Encode.
func (h Header) Timestamp() time.Time {
	return time.Unix(int64(h.Seconds), int64(h.Microseconds)*1000)
}
