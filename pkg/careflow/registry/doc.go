// Package registry provides a concurrency-safe, name-keyed registry.
//
// The supervisor keeps compiled workflows in a Registry keyed by workflow
// name. Registration happens at startup and rejects duplicates, so two
// workflows can never silently shadow each other.
package registry
