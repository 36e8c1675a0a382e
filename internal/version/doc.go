// Package version exposes build metadata of fall-guard.
//
// Version, Commit and BuildTime are injected with ldflags. Semver parses the
// version for the updater, and AttachCobraVersionCommand adds the `version`
// subcommand to both binaries.
package version
