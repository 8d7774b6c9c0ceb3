package history

// Package history archives completed dispatches so the analytics view
// can show what went out recently, across restarts.
