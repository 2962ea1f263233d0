// Package jwt verifies the HS512 access tokens issued by the identity
// service. Two kinds of subject share one format: end users carry a positive
// user id and an email, while backend callers such as the login service carry
// only a service name (see Claims.IsService).
//
// Verified claims travel in the request context via SetAuth and GetAuth.
package jwt
