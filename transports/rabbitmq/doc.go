// Package rabbitmq provides the RabbitMQ transport for fishbus envelopes.
//
// Envelope fields map onto AMQP properties: the identity becomes MessageId,
// the label becomes Type, the time-to-live becomes Expiration and custom
// properties become headers. Scheduled envelopes are published to a
// delayed-message exchange with an x-delay header.
package rabbitmq
