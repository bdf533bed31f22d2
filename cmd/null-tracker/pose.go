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

package main

import (
	"vrpn/message"

	vrpn "vrpn"
)

// fullyReliable is the class of service every pose update is sent under:
// this collaborator has no low-latency channel to fall back to.
const fullyReliable = vrpn.ClassReliable

// poseBody is this collaborator's private wire encoding for a
// "vrpn_Tracker Position" message: a sensor index, a position and an
// orientation quaternion. The core never parses this -- it only frames
// and delivers the bytes -- so the field layout is free to be whatever
// null-tracker finds convenient.
type poseBody struct {
	Sensor         int32   `order:"big"`
	X, Y, Z        float64 `order:"big"`
	Qx, Qy, Qz, Qw float64 `order:"big"`
}

// identityPose returns the (fixed) pose null-tracker reports: origin
// position, identity orientation.
func identityPose(sensor int32) poseBody {
	return poseBody{Sensor: sensor, Qw: 1}
}

// Encode marshals p using the shared reflection-based message encoder, the
// same one the core uses for its own system message bodies.
func (p poseBody) Encode() ([]byte, error) {
	return message.Marshal(&p)
}
