// Package hash provides keyed one-way hashing for values that must be looked
// up by their hash, such as backup codes and device tokens.
//
// Hashes are deterministic for a given key so storage can index them. Each
// use case derives its own key with Derive, so a backup code hash can never be
// replayed as a device token hash.
package hash
