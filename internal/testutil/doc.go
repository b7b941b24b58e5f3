// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when seeding conversations, assembling rosters and
// checking store backends against the core contracts. They are not intended
// for production usage.
package testutil
