package app

import (
	"net/http"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/vcs"
)

type SystemInfo struct {
	Version        string                 `json:"version"`
	Environment    string                 `json:"environment"`
	PaymentMethods []domain.PaymentMethod `json:"paymentMethods"`
}

type HealthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo SystemInfo `json:"systemInfo"`
}

func (app *Application) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	systemInfo := SystemInfo{
		Version:        vcs.Version(),
		Environment:    app.config.Env,
		PaymentMethods: app.providers.Methods(),
	}

	resp := HealthcheckResponse{
		Status:     status,
		SystemInfo: systemInfo,
	}

	err := app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
