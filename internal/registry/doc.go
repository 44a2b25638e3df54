// Package registry provides the central "glue" for the module system.
//
// The Registry maps shape names used in flow definitions (e.g. "request") to
// the handlers that implement them. Modules register their handlers once at
// application startup; the scheduler looks them up for every node it runs.
package registry
