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

	"gopkg.in/validator.v2"
)

// ValidationError wraps the field-level errors produced by validating a
// merged config, letting callers inspect individual fields without
// depending on validator.ErrorMap directly.
type ValidationError struct {
	errs validator.ErrorMap
}

// Error implements error.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %v", map[string]validator.ErrorArray(e.errs))
}

// ErrForField returns the validation errors recorded against field, or nil
// if field passed validation.
func (e ValidationError) ErrForField(field string) validator.ErrorArray {
	return e.errs[field]
}
