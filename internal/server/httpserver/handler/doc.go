// Package handler provides the HTTP handlers of the respkv admin endpoint.
//
// The admin endpoint never touches the keyspace: the store is owned by the
// event loop goroutine. Handlers only report process state such as
// liveness and build information.
package handler
