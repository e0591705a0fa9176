//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical project version.
// The CLI, the client bridge and the server share this version
// per the lockstep versioning policy.
const Version = "0.3.0"

// WireVersion identifies the command wire format.
// Changing the order or width of any field of an existing Opcode
// is a breaking change and must bump WireVersion.
const WireVersion uint16 = 3
