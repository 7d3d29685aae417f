// Package workspace manages the output directory of a run: the shared result
// build dir that package build dirs are merged into, and the index files
// written next to it.
//
// Files are written through a temporary file in the same directory and
// renamed into place.
package workspace
