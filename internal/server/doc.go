// Package server exposes the chat over HTTP: the websocket endpoint that
// feeds sessions into a chat.Hub, the account and history REST API, uploads,
// and the health and test pages.
//
// Configuration, origin checks, rate limiting and the websocket transport
// live in their own files; handlers are methods on Server so that every
// dependency is explicit.
package server
