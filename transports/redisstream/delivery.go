package redisstream

import (
	"context"
	"sync"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/redis/go-redis/v9"
)

// delivery adapts a stream entry to messaging.TransportDelivery
type delivery struct {
	transport *Transport
	sub       *subscription
	ctx       context.Context
	entryID   string
	envelope  *contracts.Envelope
	once      sync.Once
}

func (d *delivery) Envelope() *contracts.Envelope {
	return d.envelope
}

// Acknowledge removes the entry from the group's pending list
func (d *delivery) Acknowledge() error {
	var err error
	d.once.Do(func() {
		if d.sub.autoAck {
			return
		}
		err = d.transport.client.XAck(d.ctx, d.sub.stream, d.sub.group, d.entryID).Err()
	})
	return err
}

// Reject acknowledges the entry; with requeue it is appended to the stream again first
func (d *delivery) Reject(requeue bool) error {
	var err error
	d.once.Do(func() {
		if requeue {
			values, encErr := encodeEntry(d.transport.serializer, d.envelope, d.transport.now())
			if encErr != nil {
				err = encErr
				return
			}
			if err = d.transport.client.XAdd(d.ctx, &redis.XAddArgs{Stream: d.sub.stream, ID: "*", Values: values}).Err(); err != nil {
				return
			}
		}
		if !d.sub.autoAck {
			err = d.transport.client.XAck(d.ctx, d.sub.stream, d.sub.group, d.entryID).Err()
		}
	})
	return err
}
