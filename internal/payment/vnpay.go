package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	vnpayVersion     = "2.1.0"
	vnpayTimeLayout  = "20060102150405"
	vnpaySuccessCode = "00"
)

var vnpayLocation = time.FixedZone("ICT", 7*60*60)

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

// VNPayProvider signs redirect URLs and verifies return/IPN callbacks with
// HMAC-SHA512 over the sorted, query-encoded parameters.
type VNPayProvider struct {
	cfg VNPayConfig
	now func() time.Time
}

func NewVNPayProvider(cfg VNPayConfig) *VNPayProvider {
	return &VNPayProvider{cfg: cfg, now: time.Now}
}

func (p *VNPayProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodVNPay
}

func (p *VNPayProvider) CreatePaymentURL(_ context.Context, req domain.PaymentRequest) (string, error) {
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("vnpay: amount must be positive, got %s", req.Amount)
	}

	now := p.now().In(vnpayLocation)

	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", vnpayVersion)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", p.cfg.TmnCode)
	params.Set("vnp_Amount", req.Amount.Round(0).Mul(decimal.NewFromInt(100)).String())
	params.Set("vnp_CreateDate", now.Format(vnpayTimeLayout))
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_OrderInfo", req.Description)
	params.Set("vnp_OrderType", "billpayment")
	params.Set("vnp_ReturnUrl", p.cfg.ReturnURL)
	params.Set("vnp_TxnRef", fmt.Sprintf("%d_%d", now.UnixMilli(), req.BookingID))
	params.Set("vnp_ExpireDate", req.ExpiresAt.In(vnpayLocation).Format(vnpayTimeLayout))

	signData := vnpaySignData(params)

	return p.cfg.PayURL + "?" + signData + "&vnp_SecureHash=" + p.sign(signData), nil
}

func (p *VNPayProvider) ParseCallback(r *http.Request) (*domain.PaymentOutcome, error) {
	params := r.URL.Query()

	txnRef := params.Get("vnp_TxnRef")
	_, idPart, found := strings.Cut(txnRef, "_")
	if !found {
		return nil, fmt.Errorf("vnpay: malformed txn ref %q", txnRef)
	}

	bookingID, err := parseBookingID(idPart)
	if err != nil {
		return nil, fmt.Errorf("vnpay: %w", err)
	}

	outcome := &domain.PaymentOutcome{
		BookingID:         bookingID,
		ProviderReference: params.Get("vnp_TransactionNo"),
		Raw:               flatten(params),
	}

	received := params.Get("vnp_SecureHash")
	params.Del("vnp_SecureHash")
	params.Del("vnp_SecureHashType")

	expected := p.sign(vnpaySignData(params))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return outcome, domain.ErrProviderSignatureInvalid
	}

	outcome.Success = params.Get("vnp_ResponseCode") == vnpaySuccessCode
	if status := params.Get("vnp_TransactionStatus"); status != "" && status != vnpaySuccessCode {
		outcome.Success = false
	}

	return outcome, nil
}

type vnpayAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func (p *VNPayProvider) Acknowledge(w http.ResponseWriter, _ *domain.PaymentOutcome, err error) {
	ack := vnpayAck{RspCode: "00", Message: "Confirm Success"}

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrProviderSignatureInvalid):
		ack = vnpayAck{RspCode: "97", Message: "Invalid Checksum"}
	case errors.Is(err, domain.ErrRecordNotFound):
		ack = vnpayAck{RspCode: "01", Message: "Order not found"}
	default:
		ack = vnpayAck{RspCode: "99", Message: "Unknown error"}
	}

	writeAck(w, ack)
}

func (p *VNPayProvider) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(p.cfg.HashSecret))
	mac.Write([]byte(data))

	return hex.EncodeToString(mac.Sum(nil))
}

// vnpaySignData renders the parameters sorted by key, values query-escaped,
// empty values skipped.
func vnpaySignData(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params.Get(k) != "" {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}

		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}

	return b.String()
}

func flatten(values url.Values) map[string]string {
	raw := make(map[string]string, len(values))
	for k := range values {
		raw[k] = values.Get(k)
	}

	return raw
}

func writeAck(w http.ResponseWriter, ack any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ack)
}
