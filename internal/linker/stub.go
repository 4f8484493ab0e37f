package linker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/pkgid"
)

// writeStubFile writes a small re-export module at dir/name.luau whose
// sole purpose is re-exporting the dependency at reqPath, per spec
// §4.5's "stub is a small textual file in the target runtime's source
// language". The file is .luau for every target; the template differs
// by target only in its require expression: Lune stubs require reqPath
// as a string path, while roblox and roblox_server stubs use the
// instance chain robloxRequireExpr builds from it.
func writeStubFile(dir, name string, target pkgid.TargetKind, reqPath string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var content string

	switch target {
	case pkgid.TargetRoblox, pkgid.TargetRobloxServer:
		content = fmt.Sprintf("return require(%s)\n", robloxRequireExpr(reqPath))
	default:
		content = fmt.Sprintf("return require(%q)\n", reqPath)
	}

	path := filepath.Join(dir, name+".luau")

	return os.WriteFile(path, []byte(content), 0o644)
}

// robloxRequireExpr renders a "./a/b/c" require path as the
// script.Parent-relative instance-path expression Roblox's Luau
// require() expects, since Roblox has no string-path require: every
// segment walks the Instance tree (Rojo's filesystem-to-instance
// mapping makes each path segment a child Instance of the same name).
func robloxRequireExpr(reqPath string) string {
	segments := splitRequirePath(reqPath)

	// A stub's own Instance is the ModuleScript itself; every reqPath is
	// relative to the folder containing it, i.e. script.Parent.
	expr := "script.Parent"

	for _, seg := range segments {
		switch seg {
		case ".":
			continue
		case "..":
			expr += ".Parent"
		default:
			expr += ":WaitForChild(" + quote(seg) + ")"
		}
	}

	return expr
}

func splitRequirePath(reqPath string) []string {
	var segs []string

	start := 0

	for i := 0; i <= len(reqPath); i++ {
		if i == len(reqPath) || reqPath[i] == '/' {
			if i > start {
				segs = append(segs, reqPath[start:i])
			}

			start = i + 1
		}
	}

	return segs
}

func quote(s string) string { return fmt.Sprintf("%q", s) }
