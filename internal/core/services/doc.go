// Package services implements the pimsync core: the session layer with its
// reauth-retry policy, the change classifier, the batch pusher with
// conflict retry, the per-collection sync engine and the collection
// directory reconciler. One generic engine serves every collection type;
// the per-payload differences live in small ItemKind adapters.
package services
