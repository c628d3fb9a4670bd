// Package secure provides memory-safe handling of resolved secrets.
//
// Resolved connection values pass through process memory between the
// backend lookup and their use (printing, env injection). This package
// wraps the memguard library so that while they wait they are:
//
//   - Encrypted at rest in memory (XSalsa20Poly1305)
//   - Protected from swapping via mlock
//   - Securely wiped when no longer needed
//   - Protected from buffer overflow via guard pages
//
// If mlock is unavailable (e.g. RLIMIT_MEMLOCK on Linux), memguard
// degrades to standard memory rather than failing.
//
// This protects against secrets leaking into core dumps and swap. It
// does NOT protect against an attacker with root access to the running
// process or hardware-level attacks.
//
// For complete cleanup of all protected data at application exit, call
// memguard.Purge() in a defer statement in main().
package secure
