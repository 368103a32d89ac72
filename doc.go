// Package cloudbackend is a client for a mobile cloud backend that stores
// schemaless entities and pushes changes to subscribed devices.
//
// # Layers
//
// [Backend] performs blocking calls against a [connection.Connection].
// [Async] wraps it with non-blocking calls that report to a [Handler] and
// return a [Future]. Handlers run on the configured [Executor], which can
// be the calling goroutine ([InlineExecutor]) or an application loop
// ([LoopExecutor]).
//
// # Continuous queries
//
// A query whose scope includes [models.ScopeFuture] is kept in the
// [ContinuousQueries] registry and re-executed every time the backend
// pushes a notification for its id. Wire [Async] into a push.Router so
// that notifications reach [Async.HandleQueryMessage].
//
// # Messaging
//
// [Messaging] builds topic messaging on top of continuous queries. Each
// topic has a watermark, the creation time of the newest message
// delivered, persisted in a watermark.Store so that a later session
// resumes where the previous one stopped.
//
//	async := cloudbackend.NewAsync(backend, cloudbackend.WithRegistration(registrar))
//	router := push.NewRouter(async, logger, m)
//	msg := cloudbackend.NewMessaging(async, marks, logger, m)
//	_, err := msg.Subscribe("#cat", handler, 50)
package cloudbackend
