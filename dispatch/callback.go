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

// Package dispatch implements the per-connection message routing a peer
// uses to turn decoded wire messages into application callbacks.
package dispatch

import (
	"errors"
	"sync"
	"time"

	vrpn "vrpn"
)

// Error codes
var (
	ErrTooManyHandlers = errors.New("dispatch: handler collection is full")
	ErrTooManyMappings = errors.New("dispatch: no free ids left in namespace")
	ErrHandlerNotFound = errors.New("dispatch: no handler registered under handle")
	ErrInvalidId       = errors.New("dispatch: id outside the registered range")
)

// Message is the decoded, translated form of a wire message handed to
// application callbacks: ids have already been mapped from the remote
// peer's numbering into this endpoint's local numbering.
type Message struct {
	Time   time.Time
	Sender vrpn.LocalId[vrpn.SenderId]
	Type   vrpn.LocalId[vrpn.TypeId]
	Body   []byte
}

// HandlerCode tells the collection what to do with a handler's slot once
// its call has returned: leave it registered, or retire it.
type HandlerCode int

const (
	// ContinueProcessing leaves the handler registered for future calls.
	ContinueProcessing HandlerCode = iota
	// RemoveThisHandler tombstones the handler's slot once this call
	// completes; the handler will not be invoked again.
	RemoveThisHandler
)

// Handler is an application (or internal) callback invoked for a message.
// A non-nil error is logged by the caller but never stops dispatch of the
// remaining handlers. Returning RemoveThisHandler unregisters the handler
// once dispatch for this slot has completed.
type Handler func(msg Message) (HandlerCode, error)

// Handle identifies a previously registered Handler so it can be removed
// later. HasType distinguishes a type-specific registration (Type holds
// the collection it lives in) from a generic, all-types registration.
type Handle struct {
	HasType bool
	Type    vrpn.LocalId[vrpn.TypeId]
	inner   int
}

// maxCollectionLen bounds how many slots a single CallbackCollection may
// grow to, guarding against unbounded growth from a misbehaving peer that
// registers and never removes handlers.
const maxCollectionLen = 1 << 20

type slot struct {
	handle       int
	handler      Handler
	senderFilter vrpn.LocalId[vrpn.SenderId]
	hasFilter    bool
	removed      bool // set under the collection mutex; never cleared
}

// CallbackCollection holds every handler registered for one message type
// (or, for the dispatcher's generic collection, every type at once).
// Removed handlers leave their slot as a tombstone rather than shifting
// the remaining slots down, so handles taken out mid-iteration stay valid.
// The collection carries its own mutex: handlers run on an endpoint's pump
// goroutine while registration and removal happen on whichever goroutine
// the application calls from.
type CallbackCollection struct {
	mtx        sync.Mutex
	slots      []*slot
	nextHandle int
}

// Add registers handler with no sender filter: it fires for messages from
// any sender. Fails with ErrTooManyHandlers once the collection is full
// and no tombstoned slot is free for reuse.
func (c *CallbackCollection) Add(handler Handler) (int, error) {
	return c.addFiltered(handler, vrpn.LocalId[vrpn.SenderId]{}, false)
}

// AddFiltered registers handler to fire only for messages from sender.
func (c *CallbackCollection) AddFiltered(handler Handler, sender vrpn.LocalId[vrpn.SenderId]) (int, error) {
	return c.addFiltered(handler, sender, true)
}

func (c *CallbackCollection) addFiltered(handler Handler, sender vrpn.LocalId[vrpn.SenderId], hasFilter bool) (int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	s := &slot{handler: handler, senderFilter: sender, hasFilter: hasFilter}
	if len(c.slots) < maxCollectionLen {
		s.handle = c.nextHandle
		c.nextHandle++
		c.slots = append(c.slots, s)
		return s.handle, nil
	}
	// Reuse the first tombstone rather than growing further.
	for i, existing := range c.slots {
		if existing == nil {
			s.handle = c.nextHandle
			c.nextHandle++
			c.slots[i] = s
			return s.handle, nil
		}
	}
	return 0, ErrTooManyHandlers
}

// Remove tombstones the slot for handle. Fails with ErrHandlerNotFound if
// it was already removed or never existed.
func (c *CallbackCollection) Remove(handle int) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for i, s := range c.slots {
		if s != nil && s.handle == handle {
			s.removed = true
			c.slots[i] = nil
			return nil
		}
	}
	return ErrHandlerNotFound
}

// Call invokes every live handler whose sender filter accepts msg.Sender,
// in registration order, collecting (but not stopping on) handler errors.
// A handler returning RemoveThisHandler has its slot tombstoned once its
// own call has returned. Dispatch iterates a snapshot taken up front, so
// handlers registered during this Call are never reached by it, while a
// removal during this Call (by the handler itself or any other goroutine)
// is honored via the per-slot removed flag before each invocation. No
// lock is held while a handler runs, so handlers are free to register or
// remove handlers themselves.
func (c *CallbackCollection) Call(msg Message) []error {
	c.mtx.Lock()
	snapshot := append([]*slot(nil), c.slots...)
	c.mtx.Unlock()

	var errs []error
	for _, s := range snapshot {
		if s == nil {
			continue
		}
		c.mtx.Lock()
		dead := s.removed
		c.mtx.Unlock()
		if dead {
			continue
		}
		if s.hasFilter && s.senderFilter != msg.Sender {
			continue
		}
		code, err := s.handler(msg)
		if err != nil {
			errs = append(errs, err)
		}
		if code == RemoveThisHandler {
			// Already-removed is fine here: the handler may have raced an
			// explicit RemoveHandler for itself.
			c.Remove(s.handle)
		}
	}
	return errs
}

// Len reports the number of live (non-tombstoned) handlers.
func (c *CallbackCollection) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	n := 0
	for _, s := range c.slots {
		if s != nil {
			n++
		}
	}
	return n
}
