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

package util

import "sync/atomic"

var _id int64

// NextID generates the next unique identifier (unique in the running
// process/application). Callers include concurrent handshake goroutines,
// so the counter is atomic.
func NextID() int {
	return int(atomic.AddInt64(&_id, 1))
}
