// Package contracts provides the core types shared by the fishbus packages.
//
// This package defines:
//   - Envelope: the fully-populated outbound message handed to a transport
//   - AmbiguousMetadataError: raised when a payload type declares a marker twice
//
// Envelopes are built by the messaging package from arbitrary payload values and
// are consumed by the transports under transports/.
package contracts
