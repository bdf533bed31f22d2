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

package config

import (
	"encoding/json"
	"testing"

	"github.com/bfix/gospel/logger"
)

const testConfigJSON = `{
	"tag": "null_tracker",
	"listen": "0.0.0.0:${PORT}",
	"connect": "",
	"logFile": "/var/log/${APP}/${APP}.log",
	"environ": {
		"PORT": "3883",
		"APP": "vrpn-go"
	}
}`

func TestParseSubstitutesEnv(t *testing.T) {
	logger.SetLogLevel(logger.WARN)

	cfg, err := Parse([]byte(testConfigJSON))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tag != "null_tracker" {
		t.Errorf("Tag = %q, want %q", cfg.Tag, "null_tracker")
	}
	if want := "0.0.0.0:3883"; cfg.Listen != want {
		t.Errorf("Listen = %q, want %q", cfg.Listen, want)
	}
	if want := "/var/log/vrpn-go/vrpn-go.log"; cfg.LogFile != want {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, want)
	}
}

func TestParseRoundTripsThroughJSON(t *testing.T) {
	cfg, err := Parse([]byte(testConfigJSON))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = json.Marshal(cfg); err != nil {
		t.Fatal(err)
	}
}

func TestParseLeavesUnresolvedReferenceUntouched(t *testing.T) {
	cfg, err := Parse([]byte(`{"tag": "x", "listen": "${MISSING}", "environ": {}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "${MISSING}" {
		t.Errorf("Listen = %q, want unresolved reference left in place", cfg.Listen)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("./does-not-exist.json"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
