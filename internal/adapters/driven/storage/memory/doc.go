// Package memory provides in-memory implementations of the driven storage
// ports: the vector index, the conversation thread store and a
// configuration store for tests.
//
// All types are safe for concurrent use.
package memory
