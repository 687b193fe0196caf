// Package jwt mints and verifies the signed bearer credentials phoneauth
// hands out: short-lived access tokens, long-lived refresh tokens, and the
// narrowly scoped phone-verification token returned by federated login.
//
// Every token carries a scope claim and a random jti. Parsing requires the
// expected scope, so a refresh token can never be presented as an access
// token or the other way round.
package jwt
