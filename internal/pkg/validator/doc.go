// Package validator checks use case inputs before they reach storage.
//
// Besides the stock go-playground rules it registers the two-factor formats:
// six digit TOTP codes and backup codes written with or without the dash.
// Failures come back as V10ValidationError keyed by snake_case field name.
package validator
