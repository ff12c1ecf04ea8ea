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
package metrics

import (
	"fmt"
	"io"

	"github.com/uber-go/tally"
)

type scopeFactory func(config Config, cluster string) (tally.Scope, io.Closer, error)

var scopeFactories = map[string]scopeFactory{
	"disabled": newDisabledScope,
	"statsd":   newStatsdScope,
	"m3":       newM3Scope,
}

// New creates a tally.Scope from config. An empty Backend defaults to
// "disabled", so the engine runs with metrics off until configured.
func New(config Config, cluster string) (tally.Scope, io.Closer, error) {
	backend := config.Backend
	if backend == "" {
		backend = "disabled"
	}
	f, ok := scopeFactories[backend]
	if !ok {
		return nil, nil, fmt.Errorf("metrics backend %q not registered", backend)
	}
	return f(config, cluster)
}
