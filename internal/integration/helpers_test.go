package integration_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/auth"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/require"
)

var keysToIgnore = map[string]struct{}{
	"timestamp": {},
	"requestId": {},
	"createdAt": {},
	"expiresAt": {},
	"paidAt":    {},
}

func prepareRequest(method, path string, body io.Reader, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, body)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

func jsonBody(t testing.TB, v any) io.Reader {
	t.Helper()

	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return bytes.NewReader(data)
}

func decode[T any](t testing.TB, res *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))

	return v
}

func compareResponse(t *testing.T, body io.Reader, expectedResponse string) {
	var actual map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&actual))

	cleanMap(actual)

	var expected map[string]any
	require.NoError(t, json.Unmarshal([]byte(expectedResponse), &expected))

	opts := cmpopts.IgnoreMapEntries(func(k string, _ any) bool {
		_, ok := keysToIgnore[k]
		return ok
	})

	if diff := cmp.Diff(expected, actual, opts); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func cleanMap(m map[string]any) {
	for k := range m {
		if _, ok := keysToIgnore[k]; ok {
			delete(m, k)
			continue
		}
		if nested, ok := m[k].(map[string]any); ok {
			cleanMap(nested)
		}
	}
}

func executeSQLFile(t testing.TB, db *pgxpool.Pool, path string) {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = db.Exec(context.Background(), string(content))
	require.NoError(t, err)
}

func authHeader(t testing.TB, userID int) map[string]string {
	t.Helper()

	token, err := auth.NewTokenVerifier(jwtSecret).Issue(
		domain.Identity{UserID: userID, DisplayName: fmt.Sprintf("user-%d", userID)},
		time.Hour,
	)
	require.NoError(t, err)

	return map[string]string{"Authorization": "Bearer " + token}
}

// vnpayCallbackURL builds a return call the way VNPay signs it.
func vnpayCallbackURL(bookingID int, responseCode, secret string) string {
	params := url.Values{}
	params.Set("vnp_TmnCode", "CINEXTST")
	params.Set("vnp_TxnRef", fmt.Sprintf("%d_%d", time.Now().UnixMilli(), bookingID))
	params.Set("vnp_TransactionNo", fmt.Sprintf("1400%d", bookingID))
	params.Set("vnp_ResponseCode", responseCode)
	params.Set("vnp_TransactionStatus", responseCode)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params.Get(k)))
	}
	data := strings.Join(parts, "&")

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))

	return "/v1/payments/vnpay/callback?" + data + "&vnp_SecureHash=" + hex.EncodeToString(mac.Sum(nil))
}

func seatStatus(t testing.TB, db *pgxpool.Pool, showtimeID int, seatNumber string) domain.SeatStatus {
	t.Helper()

	var status domain.SeatStatus
	err := db.QueryRow(context.Background(),
		`SELECT status FROM showtime_seats WHERE showtime_id = $1 AND seat_number = $2`,
		showtimeID, seatNumber,
	).Scan(&status)
	require.NoError(t, err)

	return status
}
