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

// Package ui holds the terminal helpers the CLI commands share: the
// startup banner, status-colored messages, and table rendering.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/dimiro1/banner"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

var verbose bool

// SetVerbose toggles Info output.
func SetVerbose(v bool) { verbose = v }

const logoTemplate = `
{{ .AnsiColor.BrightCyan }}cylcw{{ .AnsiColor.Default }} :: cycling workflow runner
`

// Logo prints the startup banner once per invocation.
func Logo() {
	banner.InitString(os.Stdout, true, true, logoTemplate)
	fmt.Println()
}

// NL prints a blank line.
func NL() { fmt.Println() }

// Info prints an informational line when verbose mode is on.
func Info(msg string, args ...interface{}) {
	if !verbose {
		return
	}
	color.Gray.Printf(msg+"\n", args...)
}

// Success prints a green confirmation line.
func Success(msg string, args ...interface{}) {
	color.Green.Printf("✓ "+msg+"\n", args...)
}

// Warn prints a yellow warning line.
func Warn(msg string, args ...interface{}) {
	color.Yellow.Printf("! "+msg+"\n", args...)
}

// Failf prints a red error line and exits non-zero.
func Failf(msg string, args ...interface{}) {
	color.Red.Printf("✗ "+msg+"\n", args...)
	os.Exit(1)
}

// ExitOnError prints err under the given action label and exits non-zero
// if err is non-nil.
func ExitOnError(action string, err error) {
	if err == nil {
		return
	}
	color.Red.Printf("✗ %s: %v\n", action, err)
	os.Exit(1)
}

// PrintOnError reports err under the given action label without exiting.
func PrintOnError(action string, err error) {
	if err == nil {
		return
	}
	color.Red.Printf("✗ %s: %v\n", action, err)
}

// Table renders rows under headers to stdout.
func Table(headers []string, rows [][]string) {
	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader(headers)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.AppendBulk(rows)
	t.Render()
}

// StatusColor colors a task status string by its severity family.
func StatusColor(status string) string {
	switch {
	case status == "succeeded":
		return color.Green.Sprint(status)
	case strings.Contains(status, "fail"):
		return color.Red.Sprint(status)
	case status == "running" || status == "submitted":
		return color.Cyan.Sprint(status)
	case strings.Contains(status, "retrying"):
		return color.Yellow.Sprint(status)
	default:
		return status
	}
}
