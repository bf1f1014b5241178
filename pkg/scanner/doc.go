// Package scanner discovers candidate code units beneath a mount root.
// It classifies files by extension and returns paths and directory
// structure only; loading is the resolver's job.
package scanner
