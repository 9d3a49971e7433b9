// Package auth issues and verifies the bearer tokens that guard the status
// API.
//
// Tokens are HS256 JWTs signed with api.jwt_secret. They carry a subject and
// a role; the role decides which permissions the holder has. Verification is
// signature-only, there is no token store.
package auth
