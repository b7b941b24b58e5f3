// Package runner drives cascades of dynamic rounds.
//
// The engine runs exactly one round per call and only reports whether
// another round should follow. A Runner is the caller-side loop: it starts
// at round 1 and keeps going while the previous round asks to continue and
// the round limit has not been reached.
//
// RunCascade is synchronous and returns every completed round. Start runs
// the same loop in the background and streams results over a channel; a
// running cascade can be stopped with Cancel. At most one cascade runs per
// conversation.
package runner
