// Package etebase implements the newer per-item collection/session
// protocol. It provides the remote log, collection directory and
// authenticator ports over a JSON HTTP API with stoken-style cursors.
package etebase
