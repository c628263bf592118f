/*
Copyright 2022 ICS-FORTH.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cycle

import "github.com/pkg/errors"

// TimeSyntaxError reports a cycle point or duration string that cannot be
// parsed.
type TimeSyntaxError struct {
	Input string
	Cause error
}

func (e *TimeSyntaxError) Error() string {
	return errors.Wrapf(e.Cause, "invalid cycle syntax %q", e.Input).Error()
}

func (e *TimeSyntaxError) Unwrap() error { return e.Cause }

func newSyntaxError(input string, cause error) error {
	return &TimeSyntaxError{Input: input, Cause: cause}
}
