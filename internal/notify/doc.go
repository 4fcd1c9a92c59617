// Package notify delivers account notifications (confirmation and password
// reset links) out of the request path.
//
// Producers call Queue.Enqueue, which never blocks: when the bounded buffer
// is full the message is dropped and a warning is logged. A single
// goroutine drains the buffer into a Sender. Delivery failures are logged
// and otherwise ignored; nothing is retried.
//
//	q := notify.NewQueue(sender, notify.Links{ConfirmURL: url}, 256, logger)
//	q.Start(ctx)
//	defer q.Close()
//
// Two senders are provided: MQTTSender publishes JSON to
// {prefix}/notify/{kind} for an external mailer, and LogSender writes the
// message to the log when no broker is configured.
package notify
