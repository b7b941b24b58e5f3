// Package session houses the in-memory implementation of
// core.ConversationStore, plus Store, which bundles it with the in-memory
// artifact and memory stores into a complete core.Store.
//
// Durable backends live under storage/ and implement the same interfaces;
// only the wiring layer decides which one to instantiate.
package session
