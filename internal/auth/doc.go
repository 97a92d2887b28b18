// Package auth owns credentials and sessions.
//
// CredentialStore is loaded once and never mutated. Sessions live behind the
// SessionStore interface (in memory or in redis) and are only reachable
// through Service, which implements login, logout and verify. A session
// snapshots the user's role and permissions at login; later credential
// changes do not reach open sessions. Expiry is measured from login time and
// applied lazily when a session is touched, or in bulk by Sweep.
//
// The bearer-token helpers in bearer.go guard the admin HTTP API and are
// unrelated to session tokens.
package auth
