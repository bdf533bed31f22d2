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

// Command vrpn-dump is a client utility used to sanity-check the wire
// protocol against a running peer: it dials a remote VRPN server,
// registers a sender of its own (so a second client on the same server can
// observe the description round trip), installs a catch-all handler, and
// logs every message it receives until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vrpn/config"
	"vrpn/connection"
	"vrpn/dispatch"

	"github.com/bfix/gospel/logger"

	vrpn "vrpn"
)

func main() {
	var (
		configPath string
		connect    string
		tag        string
	)
	flag.StringVar(&configPath, "config", "", "path to a JSON node configuration (optional)")
	flag.StringVar(&connect, "connect", "", "remote peer address, \"host:port\" (overrides -config)")
	flag.StringVar(&tag, "tag", "vrpn-dump", "short label for this peer in log lines")
	flag.Parse()

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vrpn-dump: %s\n", err)
			os.Exit(1)
		}
		if connect == "" {
			connect = cfg.Connect
		}
		if tag == "vrpn-dump" && cfg.Tag != "" {
			tag = cfg.Tag
		}
	}
	if connect == "" {
		fmt.Fprintln(os.Stderr, "vrpn-dump: -connect host:port (or -config) is required")
		os.Exit(1)
	}

	logger.SetLogLevel(logger.INFO)

	conn, err := connection.NewClient(tag, "tcp+"+connect)
	if err != nil {
		logger.Printf(logger.ERROR, "[%s] connecting to %s: %s\n", tag, connect, err)
		os.Exit(1)
	}
	defer conn.Close()

	if _, err := conn.RegisterSender(vrpn.Name(fmt.Sprintf("%s0", tag))); err != nil {
		logger.Printf(logger.ERROR, "[%s] registering sender: %s\n", tag, err)
		os.Exit(1)
	}

	if _, err := conn.AddHandler(func(msg dispatch.Message) (dispatch.HandlerCode, error) {
		logger.Printf(logger.INFO, "[%s] sender=%d type=%d %d bytes @ %s\n",
			tag, msg.Sender.Id, msg.Type.Id, len(msg.Body), msg.Time.Format("15:04:05.000"))
		return dispatch.ContinueProcessing, nil
	}); err != nil {
		logger.Printf(logger.ERROR, "[%s] registering handler: %s\n", tag, err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf(logger.INFO, "[%s] terminating on signal %s\n", tag, sig)
}
