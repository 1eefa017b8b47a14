// Package file provides a file-backed secret store. Blobs are written to
// per-account files with 0600 permissions under the pimsync config
// directory. Blobs stored with persist=false never touch disk; they live
// in process memory and vanish when the process exits.
package file
