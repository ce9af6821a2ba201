// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags, for example:
//
//	go build -ldflags "-X jackconnector/pkg/build.buildName=jackconnector -X jackconnector/pkg/build.buildVersion=0.1.0"
//
// Every process also gets an InstanceID so that logs, metrics and monitor
// streams from concurrently running clients can be told apart.
package build

import (
	"fmt"

	"github.com/google/uuid"
)

const description = "Realtime JACK client: ports, connections and a process bridge"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
	InstanceID  string
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Development defaults are used when they are not.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "jackconnector",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize assigns the instance id, then validates and copies build
// information from the ldflags variables. On error the development defaults
// stay in place, so callers may log the error and carry on.
func Initialize() error {
	buildFlags.InstanceID = uuid.NewString()

	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String is the one-line form printed by the version command.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
