package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// Webhook posts lifecycle events as JSON to an operator-configured
// endpoint. Best-effort, single attempt.
type Webhook struct {
	Endpoint string
	Client   *http.Client
}

func NewWebhook(endpoint string) *Webhook {
	return &Webhook{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (w *Webhook) Send(event string, payload interface{}) {
	b, _ := json.Marshal(map[string]interface{}{"event": event, "payload": payload})
	if resp, err := w.Client.Post(w.Endpoint, "application/json", bytes.NewReader(b)); err == nil {
		resp.Body.Close()
	}
}
