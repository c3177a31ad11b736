// Package metadata extracts transport metadata from arbitrary payload values.
//
// Payload types declare their metadata with the fishbus struct tag:
//   - `fishbus:"messageid"` marks the field holding the message identity;
//     String is only used when the field is exported
//   - `fishbus:"ttl"` marks the time.Duration field holding the time-to-live
//   - `fishbus:"label=<value>"` sets the routing label of the whole type
//
// Each marker may be declared at most once per type. Declarations are resolved
// once per type into a TypeDescriptor; registering types up front with Register
// reports duplicate markers at startup instead of on the first send.
package metadata
