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
package configutil

import (
	"errors"
	"path/filepath"
)

// ErrCycleRef is returned by resolveExtends when a file's "extends:" chain
// loops back on itself.
var ErrCycleRef = errors.New("cyclic reference in configuration extends detected")

// resolveExtends walks fpath's "extends:" chain, as reported by readExtends,
// up to its root-most base file. A relative extends value is resolved
// against the directory of the file that named it. The returned filenames
// are ordered base-first, fpath last, so a caller merging them in order
// lets fpath's own fields win.
func resolveExtends(fpath string, readExtends func(filename string) (string, error)) ([]string, error) {
	visited := make(map[string]bool)
	var chain []string

	current := fpath
	for {
		if visited[current] {
			return nil, ErrCycleRef
		}
		visited[current] = true
		chain = append(chain, current)

		target, err := readExtends(current)
		if err != nil {
			return nil, err
		}
		if target == "" {
			break
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = target
	}

	reversed := make([]string, len(chain))
	for i, f := range chain {
		reversed[len(chain)-1-i] = f
	}
	return reversed, nil
}
