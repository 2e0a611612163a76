package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

const (
	momoRequestType  = "captureWallet"
	maxCallbackBytes = 64 << 10
)

type MomoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
}

// MomoProvider creates MoMo wallet payments and verifies IPN callbacks
// signed with HMAC-SHA256.
type MomoProvider struct {
	cfg    MomoConfig
	client *http.Client
	now    func() time.Time
}

func NewMomoProvider(cfg MomoConfig, client *http.Client) *MomoProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &MomoProvider{cfg: cfg, client: client, now: time.Now}
}

func (p *MomoProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodMomo
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
}

func (p *MomoProvider) CreatePaymentURL(ctx context.Context, req domain.PaymentRequest) (string, error) {
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("momo: amount must be positive, got %s", req.Amount)
	}

	orderID := fmt.Sprintf("%d-%d", req.BookingID, p.now().UnixMilli())

	body := momoCreateRequest{
		PartnerCode: p.cfg.PartnerCode,
		RequestID:   orderID,
		Amount:      req.Amount.Round(0).IntPart(),
		OrderID:     orderID,
		OrderInfo:   req.Description,
		RedirectURL: p.cfg.RedirectURL,
		IPNURL:      p.cfg.IPNURL,
		RequestType: momoRequestType,
		Lang:        "vi",
	}

	body.Signature = p.sign(momoSignData([][2]string{
		{"accessKey", p.cfg.AccessKey},
		{"amount", strconv.FormatInt(body.Amount, 10)},
		{"extraData", body.ExtraData},
		{"ipnUrl", body.IPNURL},
		{"orderId", body.OrderID},
		{"orderInfo", body.OrderInfo},
		{"partnerCode", body.PartnerCode},
		{"redirectUrl", body.RedirectURL},
		{"requestId", body.RequestID},
		{"requestType", body.RequestType},
	}))

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("momo: create payment: %w", err)
	}
	defer resp.Body.Close()

	var created momoCreateResponse
	err = json.NewDecoder(io.LimitReader(resp.Body, maxCallbackBytes)).Decode(&created)
	if err != nil {
		return "", fmt.Errorf("momo: decode response: %w", err)
	}

	if created.ResultCode != 0 || created.PayURL == "" {
		return "", fmt.Errorf("momo: create payment rejected with code %d: %s", created.ResultCode, created.Message)
	}

	return created.PayURL, nil
}

type momoCallback struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

func (c momoCallback) fields(accessKey string) [][2]string {
	return [][2]string{
		{"accessKey", accessKey},
		{"amount", strconv.FormatInt(c.Amount, 10)},
		{"extraData", c.ExtraData},
		{"message", c.Message},
		{"orderId", c.OrderID},
		{"orderInfo", c.OrderInfo},
		{"orderType", c.OrderType},
		{"partnerCode", c.PartnerCode},
		{"payType", c.PayType},
		{"requestId", c.RequestID},
		{"responseTime", strconv.FormatInt(c.ResponseTime, 10)},
		{"resultCode", strconv.Itoa(c.ResultCode)},
		{"transId", strconv.FormatInt(c.TransID, 10)},
	}
}

func (p *MomoProvider) ParseCallback(r *http.Request) (*domain.PaymentOutcome, error) {
	var cb momoCallback

	err := json.NewDecoder(io.LimitReader(r.Body, maxCallbackBytes)).Decode(&cb)
	if err != nil {
		return nil, fmt.Errorf("momo: decode callback: %w", err)
	}

	idPart, _, _ := strings.Cut(cb.OrderID, "-")
	bookingID, err := parseBookingID(idPart)
	if err != nil {
		return nil, fmt.Errorf("momo: %w", err)
	}

	fields := cb.fields(p.cfg.AccessKey)

	raw := make(map[string]string, len(fields))
	for _, f := range fields[1:] {
		raw[f[0]] = f[1]
	}

	outcome := &domain.PaymentOutcome{
		BookingID:         bookingID,
		ProviderReference: strconv.FormatInt(cb.TransID, 10),
		Raw:               raw,
	}

	expected := p.sign(momoSignData(fields))
	if !hmac.Equal([]byte(cb.Signature), []byte(expected)) {
		return outcome, domain.ErrProviderSignatureInvalid
	}

	outcome.Success = cb.ResultCode == 0

	return outcome, nil
}

// Acknowledge answers the IPN with 204 No Content, which MoMo treats as
// received whatever the booking outcome was.
func (p *MomoProvider) Acknowledge(w http.ResponseWriter, _ *domain.PaymentOutcome, _ error) {
	w.WriteHeader(http.StatusNoContent)
}

func (p *MomoProvider) sign(data string) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.SecretKey))
	mac.Write([]byte(data))

	return hex.EncodeToString(mac.Sum(nil))
}

func momoSignData(fields [][2]string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f[0] + "=" + f[1]
	}

	return strings.Join(parts, "&")
}
