// Package state persists per-actor conversation wizards in a key-value table
// so that any process can resume them on the next update.
package state
