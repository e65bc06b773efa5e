// Package auth issues and verifies the bearer tokens that guard the
// broker's control API.
//
// Tokens are HS256 JWTs signed with the shared secret from api.auth. Each
// carries an operator name and one of three roles:
//   - viewer: read device snapshots and the event stream
//   - operator: viewer plus decoder state commands
//   - maintainer: operator plus device tasks and disconnects
//
// Permissions are a static role mapping; there is no user database.
package auth
