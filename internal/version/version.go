// Package version holds the build information, set with -ldflags -X.
package version

var (
	// PackageName is the name of the program.
	PackageName = "fred"

	// Version is the release version.
	Version = "undefined"

	// CommitHash is the git commit the binary was built from.
	CommitHash = "undefined"

	// BuildDate is when the binary was built.
	BuildDate = "undefined"
)
