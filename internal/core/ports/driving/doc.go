// Package driving defines the service interfaces pimsync exposes to its
// drivers (CLI, host applications). Services implement these.
package driving
