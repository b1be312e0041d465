// Package arq owns the stop-and-wait engines.
//
// Ownership boundary:
// - sender: chunking, transmit/await-ack/retransmit per frame
// - receiver: validation, ordering, duplicate suppression, delivery, acks
//
// Each engine runs a single blocking loop and is the only writer of its
// sequence state. Channel calls are the only suspension points.
//
// Lifecycle:
// - the caller opens a channel.Channel and hands it to NewSender/NewReceiver
// - the engine owns the channel from then on; Close releases it
package arq
