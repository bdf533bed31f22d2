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

// Package config loads the JSON node configuration a CLI binary starts
// from: the address it listens on or dials, its log tag and file, and an
// environment map used for "${VAR}"-style substitution across the other
// string fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/bfix/gospel/logger"
)

// NodeConfig is the configuration for one vrpn-go peer process.
type NodeConfig struct {
	Tag     string            `json:"tag"`     // short peer label used in log lines
	Listen  string            `json:"listen"`  // "0.0.0.0:3883" style address (server mode)
	Connect string            `json:"connect"` // "host:3883" style address (client mode)
	LogFile string            `json:"logFile"` // opaque log file path, passed through untouched
	Env     map[string]string `json:"environ"`
}

// Load parses a JSON-encoded configuration file into a NodeConfig and
// applies "${VAR}" substitutions from its own Env map to every other
// string field.
func Load(fileName string) (*NodeConfig, error) {
	file, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", fileName, err)
	}
	return Parse(file)
}

// Parse unmarshals raw JSON bytes into a NodeConfig; split out from Load so
// tests can exercise it without a fixture file on disk.
func Parse(data []byte) (*NodeConfig, error) {
	cfg := new(NodeConfig)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	applySubstitutions(cfg, cfg.Env)
	return cfg, nil
}

var rx = regexp.MustCompile(`\$\{([^\}]*)\}`)

// substString replaces every "${NAME}" occurrence in s with env["NAME"],
// leaving unresolvable references untouched.
func substString(s string, env map[string]string) string {
	matches := rx.FindAllStringSubmatch(s, -1)
	for _, m := range matches {
		if len(m[1]) == 0 {
			continue
		}
		subst, ok := env[m[1]]
		if !ok {
			continue
		}
		s = strings.Replace(s, "${"+m[1]+"}", subst, -1)
	}
	return s
}

// applySubstitutions traverses the configuration data structure and
// applies string substitutions to every string field, repeating until a
// pass makes no further change (so one substituted value may itself
// contain another reference).
func applySubstitutions(x interface{}, env map[string]string) {
	var process func(v reflect.Value)
	process = func(v reflect.Value) {
		for i := 0; i < v.NumField(); i++ {
			fld := v.Field(i)
			if !fld.CanSet() {
				continue
			}
			switch fld.Kind() {
			case reflect.String:
				s := fld.Interface().(string)
				for {
					s1 := substString(s, env)
					if s1 == s {
						break
					}
					logger.Printf(logger.DBG, "[config] %s --> %s\n", s, s1)
					fld.SetString(s1)
					s = s1
				}
			case reflect.Struct:
				process(fld)
			case reflect.Ptr:
				e := fld.Elem()
				if e.IsValid() {
					process(e)
				}
			}
		}
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Ptr:
		if e := v.Elem(); e.IsValid() {
			process(e)
		}
	case reflect.Struct:
		process(v)
	}
}
