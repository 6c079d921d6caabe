// Package auth issues and validates the bearer tokens that protect the
// status API's mutating endpoints.
//
// Tokens are HS256 JWTs signed with api.token_secret. They carry a subject
// (who the token was minted for) and a scope. Validation is by signature
// and expiry only; there is no token store, so rotating the secret is the
// way to revoke every outstanding token.
package auth
