// Package storage defines the records issued by the authorization server and the
// interfaces used to keep them.
//
// Two record types exist:
//   - AuthorizationCode: single-use, minted on consent approval, consumed at the token endpoint
//   - AccessToken: minted on a successful code exchange, checked on every protected request
//
// Records are never mutated after creation. Their lifecycle is create, then either consume
// or expire. Implementations must treat a record whose ExpiresAt has passed as absent even
// if it has not been swept yet.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-process store with per-record expiry and a background sweep
package storage
