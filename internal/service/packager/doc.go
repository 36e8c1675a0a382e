// Package packager prepares the release manifest consumed by the updater.
//
// It computes checksums for the fall-guard binaries in a build directory and
// writes the YAML manifest that is uploaded to the update folder next to them.
package packager
