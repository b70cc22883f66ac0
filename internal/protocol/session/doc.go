// Package session owns transport reliability settings shared by the game
// server and client.
//
// Ownership boundary:
// - the shared session timeout and the values derived from it
// - dial retry backoff
package session
