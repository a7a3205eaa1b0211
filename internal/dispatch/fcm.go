package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/courier-dispatch/internal/models"
)

// FCMPush posts new-job data messages to the FCM HTTPv1 endpoint so rider
// devices without a live socket still hear about open jobs. Best-effort;
// errors are swallowed.
type FCMPush struct {
	Endpoint string
	Key      string
	Topic    string
	Client   *http.Client
}

func NewFCMPush(endpoint, key, topic string) *FCMPush {
	return &FCMPush{Endpoint: endpoint, Key: key, Topic: topic, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (f *FCMPush) NotifyNewJob(job *models.HydratedJob) {
	body := map[string]interface{}{
		"message": map[string]interface{}{
			"topic": f.Topic,
			"data": map[string]interface{}{
				"event":       EventJobAvailable,
				"job_id":      job.ID,
				"description": job.Description,
			},
		},
	}
	b, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, f.Endpoint, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Key != "" {
		req.Header.Set("Authorization", "Bearer "+f.Key)
	}
	if resp, err := f.Client.Do(req); err == nil {
		resp.Body.Close()
	}
}
