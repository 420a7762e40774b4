package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/aivideopro/aivideopro/internal/model"
)

// Header names shared by outgoing webhooks and backend status callbacks.
const (
	HeaderSignature  = "X-AVP-Signature"
	HeaderTimestamp  = "X-AVP-Timestamp"
	HeaderDeliveryID = "X-AVP-Delivery-Id"
	HeaderEvent      = "X-AVP-Event"
)

const userAgent = "AIVideoPro-Webhook/1.0"

const (
	clientTimeout         = 30 * time.Second
	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 15 * time.Second
)

// ErrBlockedAddress is returned when a target resolves to a loopback,
// link-local or private address at connect time.
var ErrBlockedAddress = errors.New("webhook target resolved to a blocked address")

// newDeliveryClient never follows redirects. Unless allowPrivate is set the
// dialer re-checks the resolved address, so a host that passed validation
// cannot later be pointed at the internal network.
func newDeliveryClient(allowPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	if !allowPrivate {
		dialer.Control = refuseBlockedAddress
	}
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func refuseBlockedAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsUnspecified() || isBlockedIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// newDeliveryRequest builds the signed POST for one attempt. The signature
// covers the timestamp and the exact body bytes.
func newDeliveryRequest(ctx context.Context, endpoint *model.WebhookEndpoint, delivery *model.WebhookDelivery, now time.Time) (*http.Request, error) {
	body := []byte(delivery.PayloadJSON)
	ts := now.Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TargetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set(HeaderSignature, Sign(endpoint.SecretHash, ts, body))
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderDeliveryID, delivery.ID)
	h.Set(HeaderEvent, string(delivery.EventType))
	return req, nil
}
