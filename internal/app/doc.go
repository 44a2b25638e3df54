// Package app contains the core application logic. It defines the main App
// struct, which loads a flow, registers the shape handlers and runs the flow
// on a scheduler, decoupled from any specific entrypoint like a CLI or server.
package app
