// Package cli holds the small pieces of top-level CLI presentation that
// don't belong to any one subcommand: version reporting and the
// top-level usage banner `cmd/pesde` prints when it doesn't recognize a
// command or args are missing entirely.
package cli

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
)

// Version is the engine's own version, reported by `pesde version` —
// distinct from any package's manifest version.
const Version = "0.1.0"

// VersionInfo is the structured form `pesde version --json` prints.
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
}

// GetVersionInfo reports the running binary's version and build platform.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// PrintVersion prints version information, either as the one-line human
// form or as indented JSON.
func PrintVersion(toolName string, jsonOutput bool) {
	info := GetVersionInfo()

	if jsonOutput {
		data, err := json.MarshalIndent(info, "", "  ")
		if err == nil {
			fmt.Println(string(data))
			return
		}
	}

	fmt.Printf("%s v%s (%s, %s/%s)\n", toolName, info.Version, info.GoVersion, info.Platform, info.Arch)
}

// CommandInfo names one subcommand for the top-level usage banner.
type CommandInfo struct {
	Name        string
	Description string
}

// PrintUsage prints the standardized top-level banner: tool name,
// invocation form, and a sorted command table.
func PrintUsage(tool string, commands []CommandInfo) {
	fmt.Printf("%s - a package manager engine\n\n", tool)
	fmt.Printf("usage:\n    %s <command> [args...]\n\n", tool)

	if len(commands) == 0 {
		return
	}

	fmt.Println("commands:")

	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })

	for _, cmd := range commands {
		fmt.Printf("    %-14s %s\n", cmd.Name, cmd.Description)
	}
}
