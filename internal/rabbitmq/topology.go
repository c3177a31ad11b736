package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DelayedExchangeType is the exchange type of the delayed message plugin
const DelayedExchangeType = "x-delayed-message"

// TopologyManager declares exchanges, queues and bindings
type TopologyManager struct {
	cm *ConnectionManager
}

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// Binding defines a queue-to-exchange binding
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// Topology represents the complete messaging topology
type Topology struct {
	Exchanges []ExchangeDeclaration
	Queues    []QueueDeclaration
	Bindings  []Binding
}

// NewTopologyManager creates a new topology manager
func NewTopologyManager(cm *ConnectionManager) *TopologyManager {
	return &TopologyManager{cm: cm}
}

// DeclareTopology declares the complete topology on one short-lived channel
func (tm *TopologyManager) DeclareTopology(ctx context.Context, topology Topology) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := tm.cm.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	for _, exchange := range topology.Exchanges {
		if err := ch.ExchangeDeclare(exchange.Name, exchange.Type, exchange.Durable, exchange.AutoDelete, false, false, exchange.Arguments); err != nil {
			return &TopologyError{Component: "exchange", Name: exchange.Name, Op: "declare", Err: err}
		}
	}

	for _, queue := range topology.Queues {
		if _, err := ch.QueueDeclare(queue.Name, queue.Durable, queue.AutoDelete, queue.Exclusive, false, queue.Arguments); err != nil {
			return &TopologyError{Component: "queue", Name: queue.Name, Op: "declare", Err: err}
		}
	}

	for _, binding := range topology.Bindings {
		if err := ch.QueueBind(binding.Queue, binding.RoutingKey, binding.Exchange, false, binding.Arguments); err != nil {
			return &TopologyError{Component: "binding", Name: binding.Queue + "->" + binding.Exchange, Op: "declare", Err: err}
		}
	}

	return nil
}

// DelayedExchange describes a delayed-message exchange routing like exchangeType
func DelayedExchange(name, exchangeType string) ExchangeDeclaration {
	return ExchangeDeclaration{
		Name:    name,
		Type:    DelayedExchangeType,
		Durable: true,
		Arguments: amqp.Table{
			"x-delayed-type": exchangeType,
		},
	}
}

// QueueTopology describes a durable queue bound to the exchange and, when
// set, to the delayed exchange, both with the queue name as routing key
func QueueTopology(queue, exchange, delayedExchange string) Topology {
	topology := Topology{
		Queues: []QueueDeclaration{{Name: queue, Durable: true}},
	}

	if exchange != "" {
		topology.Exchanges = append(topology.Exchanges, ExchangeDeclaration{Name: exchange, Type: amqp.ExchangeDirect, Durable: true})
		topology.Bindings = append(topology.Bindings, Binding{Queue: queue, Exchange: exchange, RoutingKey: queue})
	}
	if delayedExchange != "" {
		topology.Exchanges = append(topology.Exchanges, DelayedExchange(delayedExchange, amqp.ExchangeDirect))
		topology.Bindings = append(topology.Bindings, Binding{Queue: queue, Exchange: delayedExchange, RoutingKey: queue})
	}

	return topology
}
