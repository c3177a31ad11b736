// Package rabbitmq wraps amqp091-go for the RabbitMQ transport.
//
// This package includes:
//   - ConnectionManager: one connection with automatic reconnection
//   - Publisher: publisher confirms on a dedicated channel
//   - Consumer: one channel per subscribed queue
//   - TopologyManager: exchanges, queues and bindings, including the
//     delayed-message exchange used for scheduled delivery
package rabbitmq
