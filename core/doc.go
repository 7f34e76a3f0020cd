// Package core contains the login domain types, the credential codec, the
// per-slot identity registry and the orchestrator that chains primary and
// federation logins. Provider SDKs, storage and transports plug in through
// the interfaces in contracts.go; core must not depend on any adapter.
package core
