// Package devkit provides an in-memory identity SDK for local development
// and tests. Provider.Primary and Provider.Federation satisfy the provider
// interfaces consumed by core.Orchestrator.
package devkit
