// Package memory gives agents a small per-agent key/value memory that
// survives across conversations.
//
// An agent stores a fact by writing a line of the form
//
//	MEMORY_STORE:<key>:<value>
//
// in its reply. ExtractDirectives pulls those lines out of the reply and
// PersonaWithMemories appends the agent's most important memories to its
// persona before the next call. The MemoryStore interface lives in the core
// package; this package provides the in-memory implementation and durable
// backends live under storage/.
package memory
