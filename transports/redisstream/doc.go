// Package redisstream carries fishbus envelopes over Redis Streams.
//
// Each envelope is stored as one stream entry holding its JSON form and the
// send time. Consumers read through a consumer group. Envelopes scheduled
// for later delivery are kept in the sorted set "<stream>:scheduled", scored
// by delivery time in milliseconds, and moved onto the stream by PromoteDue;
// subscribers call it before every read. Entries whose time-to-live has
// passed by the time they are read are acknowledged and dropped.
package redisstream
