// Package admin serves the local operator surface of a running instance
// and the client the CLI uses to reach it.
//
// Routes:
//
//	GET    /health                  liveness probe
//	GET    /status                  state snapshot, shards, archive stats
//	GET    /flags                   current override flags
//	POST   /flags                   toggle maintenance, dev or debug
//	GET    /metrics                 Prometheus exposition
//	GET    /ws/state                websocket stream of /status payloads
//	GET    /archive/                archive sections
//	GET    /archive/{section}       keys of a section
//	GET    /archive/{section}/{key} one value
//	PUT    /archive/{section}/{key} raw request body becomes the value
//	DELETE /archive/{section}/{key}
//
// Flag changes take effect on the next status rotation tick. They never
// change the handler mode, which is fixed at startup.
//
// The server binds to loopback by default and has no authentication.
package admin
