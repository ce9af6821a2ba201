// SPDX-License-Identifier: MIT
package audio

import (
	"strings"
	"unicode/utf8"
)

// StripClientPrefix returns the part of a full port name after the first
// ':'. A name without a separator inside the first limit bytes is returned
// unchanged.
//
// The fallback mirrors what jack_connector always did. Whether a name with
// no client part should instead be rejected has never been settled.
func StripClientPrefix(fullName string, limit int) string {
	search := fullName
	if limit > 0 && len(search) > limit {
		search = search[:limit]
	}
	if i := strings.IndexByte(search, ':'); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}

// BelongsToClient reports whether fullName starts with "<client>:".
func BelongsToClient(fullName, client string) bool {
	return len(fullName) > len(client) &&
		fullName[len(client)] == ':' &&
		strings.HasPrefix(fullName, client)
}

// FullPortName joins a client name and a short port name.
func FullPortName(client, short string) string {
	return client + ":" + short
}

// FilterOwn returns names unchanged when withOwn is true, otherwise a new
// slice without the ports belonging to client.
func FilterOwn(names []string, client string, withOwn bool) []string {
	if withOwn {
		return names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !BelongsToClient(name, client) {
			out = append(out, name)
		}
	}
	return out
}

// TruncateName cuts name to at most limit bytes without splitting a UTF-8
// sequence.
func TruncateName(name string, limit int) string {
	if limit <= 0 || len(name) <= limit {
		return name
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// findPort is a linear scan; the first exact match wins.
func findPort(ports []Port, short string) (int, bool) {
	for i := range ports {
		if ports[i].ShortName == short {
			return i, true
		}
	}
	return -1, false
}
