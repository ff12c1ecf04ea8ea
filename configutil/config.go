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

// Package configutil loads YAML configuration files, following a chain of
// "extends:" overrides from a base file up to the one requested, then
// validates the merged result once via struct tags.
package configutil

import (
	"fmt"
	"io/ioutil"

	yaml "gopkg.in/yaml.v2"
	"gopkg.in/validator.v2"
)

// Load reads filename, resolving any "extends:" chain it names, merges
// every file in the chain base-first into config, and validates the
// merged result.
func Load(filename string, config interface{}) error {
	filenames, err := resolveExtends(filename, readExtendsField)
	if err != nil {
		return err
	}
	return loadFiles(config, filenames)
}

// loadFiles merges filenames into config in order, each file's fields
// overriding the previous file's where present, then validates once over
// the fully merged result.
func loadFiles(config interface{}, filenames []string) error {
	for _, fn := range filenames {
		data, err := ioutil.ReadFile(fn)
		if err != nil {
			return fmt.Errorf("read %s: %s", fn, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("parse %s: %s", fn, err)
		}
	}
	if err := validator.Validate(config); err != nil {
		if em, ok := err.(validator.ErrorMap); ok {
			return ValidationError{errs: em}
		}
		return err
	}
	return nil
}

// extendsField is the only field configutil itself interprets; every other
// key is opaque to it and left to the caller's own Config struct.
type extendsField struct {
	Extends string `yaml:"extends"`
}

// readExtendsField reads just the "extends:" key out of fpath, without
// otherwise interpreting the document.
func readExtendsField(fpath string) (string, error) {
	data, err := ioutil.ReadFile(fpath)
	if err != nil {
		return "", fmt.Errorf("read %s: %s", fpath, err)
	}
	var ef extendsField
	if err := yaml.Unmarshal(data, &ef); err != nil {
		return "", fmt.Errorf("parse %s: %s", fpath, err)
	}
	return ef.Extends, nil
}
