// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracker implements the HTTP half of BEP 3's tracker protocol: a
// GET request carrying the info hash, our peer id, and our listening port,
// answered with a bencoded dict naming a reannounce interval and a peer
// list in either compact or dictionary form.
package tracker

import "time"

// Config configures a Client.
type Config struct {
	AnnounceTimeout time.Duration `yaml:"announce_timeout"`
	NumWant         int           `yaml:"num_want"`
}

func (c Config) applyDefaults() Config {
	if c.AnnounceTimeout == 0 {
		c.AnnounceTimeout = 10 * time.Second
	}
	if c.NumWant == 0 {
		c.NumWant = 50
	}
	return c
}
