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

// Command null-tracker is the sample server collaborator: it binds
// 0.0.0.0:3883, accepts connections from any number of clients, registers
// a single sender "Tracker0" and streams an identity pose under
// "vrpn_Tracker Position" at 2 Hz. It takes no flags, matching the legacy
// null_tracker reference server.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"vrpn/connection"

	"github.com/bfix/gospel/logger"
)

const listenAddr = "0.0.0.0:3883"

func main() {
	logger.SetLogLevel(logger.INFO)

	conn, err := connection.NewServer("null_tracker", listenAddr)
	if err != nil {
		logger.Printf(logger.ERROR, "[null_tracker] bind failed: %s\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	sender, err := conn.RegisterSender("Tracker0")
	if err != nil {
		logger.Printf(logger.ERROR, "[null_tracker] registering sender: %s\n", err)
		os.Exit(1)
	}
	typeID, err := conn.RegisterType("vrpn_Tracker Position")
	if err != nil {
		logger.Printf(logger.ERROR, "[null_tracker] registering type: %s\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			body, err := identityPose(0).Encode()
			if err != nil {
				logger.Printf(logger.ERROR, "[null_tracker] encoding pose: %s\n", err)
				continue
			}
			conn.PackMessageBody(typeID, sender, body, fullyReliable)

		case sig := <-sigCh:
			logger.Printf(logger.INFO, "[null_tracker] terminating on signal %s\n", sig)
			os.Exit(0)
		}
	}
}
