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
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/validator.v2"
)

const (
	goodConfig = `
listen_port: 6881
max_unchoked: 4
peers:
    - host1:6881
    - host2:6882
`
	invalidConfig = `
listen_port: 0
max_unchoked: 0
peers:
`
	goodExtendsConfig = `
extends: %s
max_unchoked: 8
peers:
    - host3:6883
`
)

type testConfig struct {
	ListenPort  int      `yaml:"listen_port" validate:"nonzero"`
	MaxUnchoked int      `yaml:"max_unchoked" validate:"min=1"`
	Peers       []string `validate:"nonzero"`
}

func writeFile(t *testing.T, contents string) string {
	f, err := ioutil.TempFile("", "configtest")
	require.NoError(t, err)
	_, err = f.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestLoad(t *testing.T) {
	fname := writeFile(t, goodConfig)
	defer os.Remove(fname)

	var cfg testConfig
	require.NoError(t, Load(fname, &cfg))
	require.Equal(t, 6881, cfg.ListenPort)
	require.Equal(t, 4, cfg.MaxUnchoked)
	require.Equal(t, []string{"host1:6881", "host2:6882"}, cfg.Peers)
}

func TestLoadFilesExtends(t *testing.T) {
	fname := writeFile(t, goodConfig)
	defer os.Remove(fname)

	partial := writeFile(t, "max_unchoked: 16")
	defer os.Remove(partial)

	var cfg testConfig
	require.NoError(t, loadFiles(&cfg, []string{fname, partial}))
	require.Equal(t, 16, cfg.MaxUnchoked)
	require.Equal(t, 6881, cfg.ListenPort)
}

func TestMissingFile(t *testing.T) {
	var cfg testConfig
	require.Error(t, Load("./no-such-config.yaml", &cfg))
}

func TestInvalidConfig(t *testing.T) {
	fname := writeFile(t, invalidConfig)
	defer os.Remove(fname)

	var cfg testConfig
	err := Load(fname, &cfg)
	require.Error(t, err)

	verr, ok := err.(ValidationError)
	require.True(t, ok)
	require.NotEmpty(t, verr.Error())
	require.Equal(t, validator.ErrorArray{validator.ErrZeroValue}, verr.ErrForField("ListenPort"))
	require.Equal(t, validator.ErrorArray{validator.ErrMin}, verr.ErrForField("MaxUnchoked"))
	require.Equal(t, validator.ErrorArray{validator.ErrZeroValue}, verr.ErrForField("Peers"))
}

func TestExtendsConfig(t *testing.T) {
	fname := writeFile(t, goodConfig)
	defer os.Remove(fname)

	extends := fmt.Sprintf(goodExtendsConfig, filepath.Base(fname))
	extendsfn := writeFile(t, extends)
	defer os.Remove(extendsfn)

	var cfg testConfig
	require.NoError(t, Load(extendsfn, &cfg))
	require.Equal(t, 6881, cfg.ListenPort)
	require.Equal(t, 8, cfg.MaxUnchoked)
	require.Equal(t, []string{"host3:6883"}, cfg.Peers)
}

func TestExtendsConfigCircularRef(t *testing.T) {
	f1 := writeFile(t, goodConfig)
	defer os.Remove(f1)
	f2 := writeFile(t, "extends: "+filepath.Base(f1))
	defer os.Remove(f2)

	// Rewrite f1 to extend f2, completing the cycle.
	require.NoError(t, ioutil.WriteFile(f1, []byte("extends: "+filepath.Base(f2)+"\n"+goodConfig), 0644))

	var cfg testConfig
	err := Load(f1, &cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cyclic reference")
}

func TestResolveExtends(t *testing.T) {
	tests := []struct {
		fpath    string
		extends  map[string]string
		expected []string
		err      error
	}{
		{
			fpath:    "/configs/c1",
			extends:  map[string]string{},
			expected: []string{"/configs/c1"},
		},
		{
			fpath:    "/configs/c1",
			extends:  map[string]string{"/configs/c1": "/configs/c2"},
			expected: []string{"/configs/c2", "/configs/c1"},
		},
		{
			fpath:    "/configs/c1",
			extends:  map[string]string{"/configs/c1": "c2"},
			expected: []string{"/configs/c2", "/configs/c1"},
		},
		{
			fpath:    "/configs/c1",
			extends:  map[string]string{"/configs/c1": "c2", "/configs/c2": "c1"},
			expected: nil,
			err:      ErrCycleRef,
		},
		{
			fpath:    "/configs/c1",
			extends:  map[string]string{"/configs/c1": "/etc/c2", "/etc/c2": "c3"},
			expected: []string{"/etc/c3", "/etc/c2", "/configs/c1"},
		},
	}

	for _, tt := range tests {
		fn := func(filename string) (string, error) {
			target, found := tt.extends[filename]
			if !found {
				return "", nil
			}
			return target, nil
		}
		filenames, err := resolveExtends(tt.fpath, fn)
		require.Equal(t, tt.err, err)
		require.Equal(t, tt.expected, filenames)
	}
}
