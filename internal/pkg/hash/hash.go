package hash

// Hash produces and verifies one-way hashes of short secrets.
type Hash interface {
	// Hash returns the hex-encoded hash of str.
	Hash(str string) ([]byte, error)
	// Verify reports whether str hashes to hashed, in constant time.
	Verify(hashed, str string) bool
}
