package app

import (
	"net/http"
)

// ServeSeatChannel upgrades the request to the realtime seat channel of a
// showtime. The connection joins the showtime right away and may join or
// leave others with messages.
func (app *Application) ServeSeatChannel(w http.ResponseWriter, r *http.Request) {
	identity := app.mustIdentity(r)

	showtimeID, err := readIDParam(r, "showtimeId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.realtime.Serve(w, r, identity, showtimeID)
	if err != nil {
		// the upgrader has already replied to the client
		app.contextGetLogger(r).Warn("websocket upgrade failed", "error", err)
	}
}
