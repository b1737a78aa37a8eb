/*
Package http exposes an engine over HTTP with a chi router.

	POST   /chat                   AI SDK chat body, answers with a data stream
	GET    /threads                thread ids
	GET    /threads/{id}/history   thread history as UI messages
	DELETE /threads/{id}           delete a thread
	POST   /flow                   run the reflection pipeline
	GET    /events?threadId=...    server-sent checkpoint events
	GET    /health                 liveness and version
	GET    /metrics                Prometheus metrics, when configured

The caller identity is resolved by an Authenticator; the default reads the
X-User-ID header.
*/
package http
