package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

type SeatMapResponse struct {
	ShowtimeId int       `json:"showtimeId"`
	MovieId    int       `json:"movieId"`
	StartTime  time.Time `json:"startTime"`
	SeatRows   []SeatRow `json:"seatRows"`
}

type SeatRow struct {
	Row   string `json:"row"`
	Seats []Seat `json:"seats"`
}

type Seat struct {
	SeatNumber string            `json:"seatNumber"`
	Type       domain.SeatType   `json:"type"`
	Price      decimal.Decimal   `json:"price"`
	Status     domain.SeatStatus `json:"status"`
	SelectedBy []SeatSelector    `json:"selectedBy"`
}

// SeatSelector is a user currently looking at a seat. The first one is the
// primary holder.
type SeatSelector struct {
	UserId      int    `json:"userId"`
	DisplayName string `json:"displayName"`
}

// GetSeatMapByShowtime returns the authoritative seat statuses together with
// the users currently selecting each seat.
func (app *Application) GetSeatMapByShowtime(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	showtimeID, err := readIDParam(r, "showtimeId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	showtimeSeats, err := app.seats.Snapshot(r.Context(), showtimeID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			logger.Warn("seat map not found for showtime", "showtime_id", showtimeID)
			app.notFoundResponse(w, r)
			return
		}

		app.serverErrorResponse(w, r, err)
		return
	}

	if len(showtimeSeats.Seats) == 0 {
		logger.Warn("showtime has no seats", "showtime_id", showtimeID)
		app.notFoundResponse(w, r)
		return
	}

	selections := make(map[string][]domain.Contender)
	for _, seat := range app.contention.Snapshot(showtimeID) {
		selections[seat.SeatNumber] = seat.Contenders
	}

	resp := SeatMapResponse{
		ShowtimeId: showtimeSeats.ShowtimeID,
		MovieId:    showtimeSeats.MovieID,
		StartTime:  showtimeSeats.StartTime,
		SeatRows:   toSeatRows(showtimeSeats.Seats, selections),
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toSeatRows(seats []domain.Seat, selections map[string][]domain.Contender) []SeatRow {
	// Seats arrive grouped by row, so rows are built in a single pass.

	var seatRows []SeatRow
	currentRow := SeatRow{Row: seats[0].Row}

	for _, v := range seats {
		if v.Row != currentRow.Row {
			seatRows = append(seatRows, currentRow)
			currentRow = SeatRow{Row: v.Row}
		}

		selectedBy := make([]SeatSelector, 0, len(selections[v.Number]))
		for _, c := range selections[v.Number] {
			selectedBy = append(selectedBy, SeatSelector{UserId: c.UserID, DisplayName: c.DisplayName})
		}

		currentRow.Seats = append(currentRow.Seats, Seat{
			SeatNumber: v.Number,
			Type:       v.Type,
			Price:      v.Price,
			Status:     v.Status,
			SelectedBy: selectedBy,
		})
	}

	seatRows = append(seatRows, currentRow)

	return seatRows
}
