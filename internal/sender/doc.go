// Package sender implements the agent's asynchronous telemetry transport.
//
// # Flow
//
//	producer -> Submit -> AsyncQueue -> Router.Convert/Route -> Method.Invoke
//	         -> completion executor -> decide -> done | retry | drop
//
// Submit never waits on the network. The queue has one consumer goroutine,
// so calls are issued in submission order; responses complete in any order.
//
// # Retries
//
// Failed requests are wrapped in an Envelope holding the already converted
// wire message. The retry subsystem arms a single timer cycle at a time;
// when it fires, the envelopes queued at that moment are re-issued and any
// that fail again wait for a later cycle. MaxAttempts counts every call,
// the first one included.
//
// Transport failures and collector rejections are retried. Malformed
// responses are logged and dropped, since decoding the same bytes again
// cannot succeed. Requests submitted with a CompletionListener are attempted
// once and the listener decides what to do with the outcome.
//
// # Resources
//
// Each DataSender owns its queue, Timer, completion executor and channel.
// Stop releases all of them; nothing is process global.
package sender
