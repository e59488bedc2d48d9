// Package dispatch owns task invocation.
//
// Ownership boundary:
// - argument/schema matching before any encoding
//
// - execution request construction
//
// - agent signal stream -> response collection
//
// Lifecycle order:
// - check -> encode -> submit -> collect -> complete | fail | cancel
//
// Nothing here retries. Module availability on the agent is an operator
// condition, reported as ModuleLoadError.
//
// The agent is reached only through Transport; dispatch never imports a
// concrete transport.
package dispatch
