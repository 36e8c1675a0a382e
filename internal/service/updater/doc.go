// Package updater downloads and applies fall-guard updates.
//
// It fetches the release manifest from the update folder, compares its
// semantic version with the running build, validates local files against the
// manifest checksums, downloads the changed artifacts to a temporary
// directory and applies them atomically with go-update.
package updater
