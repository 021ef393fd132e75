package router

import (
	"net/http"

	"coedit/socket"
)

// Setup builds the HTTP handler. The only surface is the websocket
// endpoint; everything else happens over the event protocol.
func Setup(srv *socket.Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.ServeWs)
	return mux
}
