// Package users manages accounts and their single role. Account
// management is admin-only; self-deletion is denied for everyone so an
// active session can never orphan itself.
package users
