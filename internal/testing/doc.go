// Package testing contains fixtures and helpers shared by package tests.
//
// Fixture lays out a miniature checkout on disk: a host checkout root, a
// chroot holding a board sysroot, and per-package work, build and source
// directories arranged the way the SDK leaves them after a build.
package testing

const (
	// testDirPermissions is the permission mode for creating test directories.
	testDirPermissions = 0o750

	// testFilePermissions is the permission mode for creating test files.
	testFilePermissions = 0o600
)
