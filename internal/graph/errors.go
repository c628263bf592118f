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

package graph

import "fmt"

// ParseError reports a source location alongside the parse failure.
type ParseError struct {
	Line   int
	Column int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("graph parse error at line %d, col %d (%q): %s", e.Line, e.Column, e.Text, e.Reason)
}

func newParseError(line int, text, reason string) *ParseError {
	return &ParseError{Line: line, Text: text, Reason: reason}
}
