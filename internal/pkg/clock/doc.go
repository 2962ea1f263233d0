// Package clock provides a tiny time abstraction.
//
// Code that compares against expiry times or computes TOTP steps depends on
// Clocker instead of calling time.Now() directly. Tests use Manual to pin and
// advance time deterministically.
package clock
