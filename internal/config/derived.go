// SPDX-License-Identifier: MIT
package config

import (
	"strings"
	"time"
)

// ResolvePort expands the "@" shorthand in a connection endpoint to the
// client's name: "@:out_l" becomes "<client>:out_l".
func (c *Config) ResolvePort(clientName, name string) string {
	if rest, ok := strings.CutPrefix(name, "@:"); ok {
		return clientName + ":" + rest
	}
	return name
}

// PortLimit returns the per-direction port capacity, never above MaxPorts.
func (c *Config) PortLimit() int {
	if c.Client.MaxPorts <= 0 || c.Client.MaxPorts > MaxPorts {
		return MaxPorts
	}
	return c.Client.MaxPorts
}

// RecordingFile returns the configured output file or a timestamped default.
func (c *Config) RecordingFile(now time.Time) string {
	if c.Recording.OutputFile != "" {
		return c.Recording.OutputFile
	}
	return "recording-" + now.UTC().Format("02-01-2006-150405") + ".wav"
}
