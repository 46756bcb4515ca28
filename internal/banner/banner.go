// Package banner prints the one-time startup block a long-running
// rpsession process prints before it starts dialing a console: a logo,
// the resolved connection settings, and a ready marker. Adapted from
// sebacius-switchboard's internal/banner/banner.go (see DESIGN.md).
package banner

import (
	"fmt"
	"strings"
)

const logo = `
======================================================================
 _ __ _ __  ___  ___ ___ ___(_) ___  _ __
| '__| '_ \/ __|/ _ \ __/ __| |/ _ \| '_ \
| |  | |_) \__ \  __\__ \__ \ | (_) | | | |
|_|  | .__/|___/\___|___/___/_|\___/|_| |_|
     |_|
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine is a single label/value row printed under the logo.
type ConfigLine struct {
	Label string
	Value string
}

// Print displays the startup banner with the service name and the
// connection settings a session was built with.
func Print(serviceName string, config []ConfigLine) {
	fmt.Println(logo)
	fmt.Printf("%s\n", serviceName)

	maxLen := 0
	for _, c := range config {
		if len(c.Label) > maxLen {
			maxLen = len(c.Label)
		}
	}

	for _, c := range config {
		padding := strings.Repeat(" ", maxLen-len(c.Label))
		fmt.Printf("  %s%s : %s\n", c.Label, padding, c.Value)
	}

	fmt.Println()
	fmt.Println("Ready.")
	fmt.Println(footer)
	fmt.Println()
}
