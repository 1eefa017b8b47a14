// Package driven defines the interfaces the sync engine consumes:
// remote protocol clients, the local item cache, the secret store and the
// collection registry. Adapters implement these.
package driven
