// Package state holds the active session binding and the last observed
// database catalog, with optional filesystem persistence between runs.
package state
