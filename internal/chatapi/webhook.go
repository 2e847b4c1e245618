package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperr "doradura/internal/errors"
	"doradura/internal/progress"
)

// WebhookSink posts progress snapshots as JSON to a configured URL. It
// implements progress.Sink, the interface the Broker delivers through; a
// snapshot's ChatID tells the chat-handler collaborator which message to
// edit, since the Worker never tracks chat message ids itself.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink builds a WebhookSink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *WebhookSink) Deliver(u progress.Update) error {
	body, err := json.Marshal(u)
	if err != nil {
		return apperr.New("chatapi.WebhookSink.Deliver", apperr.KindInternal, err)
	}

	req, err := http.NewRequest(http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return apperr.New("chatapi.WebhookSink.Deliver", apperr.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return apperr.New("chatapi.WebhookSink.Deliver", apperr.KindTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return apperr.NewWithMessage("chatapi.WebhookSink.Deliver", apperr.KindTransport, nil,
			fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	return nil
}

// WebhookDelivery uploads the finished file to a configured webhook as
// multipart form data, retrying transient failures with a bounded backoff
// (one attempt plus up to K retries, spec.md §6's "retried K times;
// transport errors surfaced").
type WebhookDelivery struct {
	URL        string
	Client     *http.Client
	MaxRetries uint64
}

// NewWebhookDelivery builds a WebhookDelivery posting to url, retrying up
// to maxRetries times on transport failure.
func NewWebhookDelivery(url string, maxRetries int) *WebhookDelivery {
	return &WebhookDelivery{
		URL:        url,
		Client:     &http.Client{Timeout: 2 * time.Minute},
		MaxRetries: uint64(maxRetries),
	}
}

func (d *WebhookDelivery) Send(ctx context.Context, chatID int64, localPath string, meta Metadata, asDocument bool) (RemoteFileRef, error) {
	var ref RemoteFileRef
	op := func() error {
		r, err := d.sendOnce(ctx, chatID, localPath, meta, asDocument)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindTransport {
				return err // retriable
			}
			return backoff.Permanent(err)
		}
		ref = r
		return nil
	}

	b := backoff.WithContext(d.retryPolicy(), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return "", unwrapPermanent(err)
	}
	return ref, nil
}

func (d *WebhookDelivery) sendOnce(ctx context.Context, chatID int64, localPath string, meta Metadata, asDocument bool) (RemoteFileRef, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", apperr.New("chatapi.WebhookDelivery.Send", apperr.KindInternal, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", fmt.Sprintf("%d", chatID))
	_ = w.WriteField("title", meta.Title)
	_ = w.WriteField("artist", meta.Artist)
	_ = w.WriteField("as_document", fmt.Sprintf("%t", asDocument))
	part, err := w.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", apperr.New("chatapi.WebhookDelivery.Send", apperr.KindInternal, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", apperr.New("chatapi.WebhookDelivery.Send", apperr.KindInternal, err)
	}
	if err := w.Close(); err != nil {
		return "", apperr.New("chatapi.WebhookDelivery.Send", apperr.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, &buf)
	if err != nil {
		return "", apperr.New("chatapi.WebhookDelivery.Send", apperr.KindInternal, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.Client.Do(req)
	if err != nil {
		return "", apperr.New("chatapi.WebhookDelivery.Send", apperr.KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", apperr.NewWithMessage("chatapi.WebhookDelivery.Send", apperr.KindTransport, nil,
			fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", apperr.NewWithMessage("chatapi.WebhookDelivery.Send", apperr.KindInternal, nil,
			fmt.Sprintf("webhook rejected upload: %d", resp.StatusCode))
	}

	var out struct {
		RemoteFileID string `json:"remote_file_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.New("chatapi.WebhookDelivery.Send", apperr.KindInternal, err)
	}
	return RemoteFileRef(out.RemoteFileID), nil
}

func (d *WebhookDelivery) SendReference(ctx context.Context, chatID int64, ref RemoteFileRef, meta Metadata) error {
	body, err := json.Marshal(struct {
		ChatID       int64  `json:"chat_id"`
		RemoteFileID string `json:"remote_file_id"`
		Title        string `json:"title"`
		Artist       string `json:"artist"`
	}{chatID, string(ref), meta.Title, meta.Artist})
	if err != nil {
		return apperr.New("chatapi.WebhookDelivery.SendReference", apperr.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL+"/reference", bytes.NewReader(body))
	if err != nil {
		return apperr.New("chatapi.WebhookDelivery.SendReference", apperr.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return apperr.New("chatapi.WebhookDelivery.SendReference", apperr.KindTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return apperr.NewWithMessage("chatapi.WebhookDelivery.SendReference", apperr.KindTransport, nil,
			fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	return nil
}

func (d *WebhookDelivery) retryPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), d.MaxRetries)
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if pe, ok := err.(*backoff.PermanentError); ok {
		perm = pe
		return perm.Err
	}
	return err
}
