package adapter

import (
	"os"
	"regexp"
)

// archiveMemberPattern matches an archive-internal DAP source path such
// as "foo.jar!/pkg/File.java" — vscode-js-debug and java-debug-server
// both report these for sources packed into a jar/asar/zip.
var archiveMemberPattern = regexp.MustCompile(`^(.+?)([!#])/(.+)$`)

// ResolvedSource is the result of mapping an adapter-reported source
// path (spec.md §4.4's "source-path resolution") to something AIDB can
// show a caller.
type ResolvedSource struct {
	// LocalPath is set when the path exists on the local filesystem as-is.
	LocalPath string

	// ArchivePath/ArchiveMember are set when the path is of the form
	// "archive!/member" and the archive itself exists locally, even if
	// its member cannot be extracted without unpacking.
	ArchivePath   string
	ArchiveMember string

	// Opaque is the original string, surfaced verbatim when neither of
	// the above resolves (e.g. a path inside a remote/containerized
	// filesystem AIDB cannot reach).
	Opaque string
}

// ResolveSourcePath implements the adapter's source-path resolver
// chain: local filesystem, then archive-member notation, then an
// opaque fallback (spec.md §4.4).
func ResolveSourcePath(path string) ResolvedSource {
	if path == "" {
		return ResolvedSource{Opaque: path}
	}

	if _, err := os.Stat(path); err == nil {
		return ResolvedSource{LocalPath: path}
	}

	if m := archiveMemberPattern.FindStringSubmatch(path); m != nil {
		archivePath, member := m[1], m[3]
		if _, err := os.Stat(archivePath); err == nil {
			return ResolvedSource{ArchivePath: archivePath, ArchiveMember: member}
		}
	}

	return ResolvedSource{Opaque: path}
}
