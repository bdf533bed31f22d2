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

package transport

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"path"
	"strings"
	"time"

	"vrpn/message"
	"vrpn/util"

	"github.com/bfix/gospel/concurrent"
	"github.com/bfix/gospel/logger"
)

// Error codes
var (
	ErrChannelNotImplemented = fmt.Errorf("Protocol not implemented")
	ErrChannelNotOpened      = fmt.Errorf("Channel not opened")
	ErrChannelInterrupted    = fmt.Errorf("Channel interrupted")
)

////////////////////////////////////////////////////////////////////////
// CHANNEL

// Channel is an abstraction for exchanging arbitrary data over various
// transport protocols and mechanisms. They are created by clients via
// 'NewChannel()' or by services run via 'NewChannelServer()'.
// A string specifies the end-point of the channel:
//     "unix+/tmp/test.sock" -- for UDS channels
//     "tcp+1.2.3.4:5"       -- for TCP channels
//     "udp+1.2.3.4:5"       -- for UDP channels
type Channel interface {
	Open(spec string) error                           // open channel (for read/write)
	Close() error                                     // close open channel
	IsOpen() bool                                     // check if channel is open
	Read([]byte, *concurrent.Signaller) (int, error)  // read from channel
	Write([]byte, *concurrent.Signaller) (int, error) // write to channel
}

// ChannelFactory instantiates specific Channel imülementations.
type ChannelFactory func() Channel

// Known channel implementations.
var channelImpl = map[string]ChannelFactory{
	"unix": NewSocketChannel,
	"tcp":  NewTCPChannel,
	"udp":  NewUDPChannel,
}

// NewChannel creates a new channel to the specified endpoint.
// Called by a client to connect to a service.
func NewChannel(spec string) (Channel, error) {
	parts := strings.Split(spec, "+")
	if fac, ok := channelImpl[parts[0]]; ok {
		inst := fac()
		err := inst.Open(spec)
		return inst, err
	}
	return nil, ErrChannelNotImplemented
}

////////////////////////////////////////////////////////////////////////
// CHANNEL SERVER

// ChannelServer creates a listener for the specified endpoint.
// The specification string has the same format as for Channel; the address
// is the local address the server listens on.
type ChannelServer interface {
	Open(spec string, hdlr chan<- Channel) error
	Close() error
	Address() net.Addr
}

// ChannelServerFactory instantiates specific ChannelServer imülementations.
type ChannelServerFactory func() ChannelServer

// Known channel server implementations.
var channelServerImpl = map[string]ChannelServerFactory{
	"unix": NewSocketChannelServer,
	"tcp":  NewTCPChannelServer,
	"udp":  NewUDPChannelServer,
}

// NewChannelServer
func NewChannelServer(spec string, hdlr chan<- Channel) (cs ChannelServer, err error) {
	parts := strings.Split(spec, "+")

	if fac, ok := channelServerImpl[parts[0]]; ok {
		// check if the basedir for the spec exists...
		if err = util.EnforceDirExists(path.Dir(parts[1])); err != nil {
			return
		}
		// instantiate server implementation
		cs = fac()
		// create the domain socket and listen to it.
		err = cs.Open(spec, hdlr)
		return
	}
	return nil, ErrChannelNotImplemented
}

////////////////////////////////////////////////////////////////////////
// MESSAGE CHANNEL

// chanReader adapts a Channel+Signaller pair to the plain io.Reader
// interface message.Decode wants, so the framing codec stays free of any
// knowledge of Signaller-based cancellation.
type chanReader struct {
	ch  Channel
	sig *concurrent.Signaller
}

func (r chanReader) Read(buf []byte) (int, error) {
	return r.ch.Read(buf, r.sig)
}

// MsgChannel is a wrapper around a generic channel for framed VRPN message
// exchange, translating GenericMessage values to and from the wire.
type MsgChannel struct {
	ch Channel
}

// NewMsgChannel wraps a plain Channel for VRPN message exchange.
func NewMsgChannel(ch Channel) *MsgChannel {
	return &MsgChannel{ch: ch}
}

// Close a MsgChannel by closing the wrapped plain Channel.
func (c *MsgChannel) Close() error {
	return c.ch.Close()
}

// Send a VRPN message over a channel.
func (c *MsgChannel) Send(sender, msgType int32, when time.Time, body []byte, sig *concurrent.Signaller) error {
	buf, err := message.Encode(sender, msgType, when, body)
	if err != nil {
		return err
	}
	logger.Printf(logger.DBG, "==> sender=%d type=%d\n", sender, msgType)
	_, err = c.WriteFrame(buf, sig)
	return err
}

// WriteFrame writes an already-encoded frame verbatim, for callers (like
// an Endpoint flushing queued system messages) that build the frame ahead
// of time.
func (c *MsgChannel) WriteFrame(buf []byte, sig *concurrent.Signaller) (int, error) {
	logger.Printf(logger.DBG, "    [%s]\n", hex.EncodeToString(buf))
	n, err := c.ch.Write(buf, sig)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, errors.New("incomplete send")
	}
	return n, nil
}

// Receive a VRPN message over a plain Channel, blocking until one full
// frame has arrived.
func (c *MsgChannel) Receive(sig *concurrent.Signaller) (*message.GenericMessage, error) {
	msg, err := message.Decode(chanReader{ch: c.ch, sig: sig})
	if err != nil {
		return nil, err
	}
	logger.Printf(logger.DBG, "<== sender=%v type=%v\n", msg.Sender, msg.Type)
	logger.Printf(logger.DBG, "    %d body bytes\n", len(msg.Body))
	return msg, nil
}
