// Package otp implements the time-based one-time password pieces of the
// two-factor flow: seed generation, Base32 transport encoding, the otpauth
// provisioning URI and a stateless RFC 6238 verifier.
//
// The verifier never reads the wall clock; callers pass the instant to check
// against. Replay protection is not handled here: Match reports which time
// step matched so the caller can persist it and refuse older steps.
package otp
