// Package messaging assembles envelopes from payload values and publishes them.
//
// MessageBuilder reads identity, label and time-to-live through the metadata
// package, encodes the payload body and stamps a correlation id:
//
//	envelope, err := messaging.BuildMessage(&OrderPlaced{OrderID: "o-1"}, "")
//	delayed, err := messaging.BuildDelayedMessage(&Reminder{}, 24*time.Hour, correlationID)
//
// A build either returns a complete envelope or an error; no partial envelope
// is ever handed to a transport. MessagePublisher composes a builder with a
// TransportPublisher such as the ones under transports/.
package messaging
