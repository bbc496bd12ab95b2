package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// WebhookChannel delivers alert payloads by POSTing JSON to a notification
// gateway that fans out to email/SMS/push providers. One HTTP request equals
// one delivery attempt; retry policy lives in the alert manager.
type WebhookChannel struct {
	// Endpoint is the gateway URL receiving delivery requests.
	Endpoint string
	// Client is the HTTP client used for requests. Its timeout acts as a
	// floor under the per-attempt deadline from ctx.
	Client *http.Client
}

// NewWebhookChannel constructs a WebhookChannel with a bounded default client.
func NewWebhookChannel(endpoint string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

// webhookRequest is the gateway wire format: the target contact plus the
// alert payload.
type webhookRequest struct {
	Contact struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Address string `json:"address"`
	} `json:"contact"`
	Alert AlertPayload `json:"alert"`
}

// webhookResponse carries the provider reference returned on success.
type webhookResponse struct {
	ProviderRef string `json:"provider_ref"`
}

// Notify performs a single delivery attempt against the gateway.
//
// Classification: network errors, 5xx, and 429 are transient (retried by the
// manager); any other non-2xx status is permanent. A 2xx response yields a
// receipt carrying the gateway's provider reference when one is returned.
func (w *WebhookChannel) Notify(ctx context.Context, contact domain.Contact, payload AlertPayload) (DeliveryReceipt, error) {
	var req webhookRequest
	req.Contact.ID = contact.ID
	req.Contact.Name = contact.Name
	req.Contact.Kind = contact.Kind
	req.Contact.Address = contact.Address
	req.Alert = payload

	body, err := json.Marshal(req)
	if err != nil {
		return DeliveryReceipt{}, &ChannelError{ContactID: contact.ID, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(body))
	if err != nil {
		return DeliveryReceipt{}, &ChannelError{ContactID: contact.ID, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(httpReq)
	if err != nil {
		return DeliveryReceipt{}, &ChannelError{ContactID: contact.ID, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return DeliveryReceipt{}, &ChannelError{
			ContactID: contact.ID,
			Transient: transient,
			Err:       fmt.Errorf("gateway returned status %d", resp.StatusCode),
		}
	}

	receipt := DeliveryReceipt{ContactID: contact.ID, DeliveredAt: time.Now().UTC()}
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10)); err == nil && len(raw) > 0 {
		var wr webhookResponse
		if json.Unmarshal(raw, &wr) == nil {
			receipt.ProviderRef = wr.ProviderRef
		}
	}
	return receipt, nil
}
