package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"
)

// NotificationArgs is the payload of one outbound notification. Jobs are
// inserted with river.Client.InsertTx inside the same transaction as the
// domain write, so a committed state change always has its notification
// queued and an aborted one never does.
type NotificationArgs struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func (NotificationArgs) Kind() string { return "notification" }

// Worker delivers notifications to the external sink as fire-and-forget
// webhooks. Delivery is at-least-once: network errors are retried by River,
// sink-side rejections are logged and dropped. Nothing here ever blocks or
// fails a core transaction.
type Worker struct {
	river.WorkerDefaults[NotificationArgs]
	sinkURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewWorker(sinkURL string, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		sinkURL:    sinkURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	args := job.Args

	if w.sinkURL == "" {
		w.log.Info("notification sink not configured, dropping", "event_type", args.EventType)
		return nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		w.log.Error("marshal notification", "event_type", args.EventType, "error", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.sinkURL, bytes.NewReader(body))
	if err != nil {
		w.log.Error("build notification request", "event_type", args.EventType, "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification sink unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.log.Warn("notification sink rejected event", "event_type", args.EventType, "status", resp.StatusCode)
	}
	return nil
}
