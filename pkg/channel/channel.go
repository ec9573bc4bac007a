// Package channel implements the external dispatch adapter contract
// (§6.5): one Dispatcher per NotificationChannel type, resolving
// "env:VAR_NAME" secret references before every send.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/config"
	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// Event is the payload handed to a channel on dispatch.
type Event struct {
	RuleName      string
	SystemID      string
	CriterionSlug string
	State         models.AlertState
	Value         float64
	Message       string
	FiredAt       time.Time
}

// Dispatcher sends one alert Event through a channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, ch models.NotificationChannel, ev Event) error
}

// Registry looks up a Dispatcher by channel type.
type Registry map[string]Dispatcher

// NewDefaultRegistry returns the built-in set of dispatchers (§6.5
// "webhook" is the reference implementation; other channel types plug
// into the same Dispatcher interface).
func NewDefaultRegistry(httpClient *http.Client) Registry {
	return Registry{
		"webhook": &WebhookDispatcher{client: httpClient},
	}
}

// Dispatch resolves the channel type and forwards to its Dispatcher.
func (r Registry) Dispatch(ctx context.Context, ch models.NotificationChannel, ev Event) error {
	d, ok := r[ch.Type]
	if !ok {
		return errs.Wrap(errs.ErrInvariant, "dispatch alert", errs.NewInvariant("channel", fmt.Sprintf("unknown channel type %q", ch.Type)))
	}
	return d.Dispatch(ctx, ch, ev)
}

// WebhookDispatcher POSTs a JSON payload to ch.Config["url"], with an
// optional bearer token from ch.Config["token"] (which may itself be an
// "env:VAR_NAME" reference, per §6.5).
type WebhookDispatcher struct {
	client *http.Client
}

type webhookPayload struct {
	Rule      string    `json:"rule"`
	SystemID  string    `json:"system_id"`
	Criterion string    `json:"criterion"`
	State     string    `json:"state"`
	Value     float64   `json:"value"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`
}

// Dispatch sends ev to the configured webhook URL.
func (w *WebhookDispatcher) Dispatch(ctx context.Context, ch models.NotificationChannel, ev Event) error {
	url := ch.Config["url"]
	if url == "" {
		return errs.Wrap(errs.ErrInvariant, "dispatch webhook", errs.NewInvariant("channel", "missing url"))
	}

	body, err := json.Marshal(webhookPayload{
		Rule:      ev.RuleName,
		SystemID:  ev.SystemID,
		Criterion: ev.CriterionSlug,
		State:     string(ev.State),
		Value:     ev.Value,
		Message:   ev.Message,
		FiredAt:   ev.FiredAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if tokenRef, ok := ch.Config["token"]; ok && tokenRef != "" {
		token, err := config.ResolveSecret(tokenRef)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "webhook dispatch failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errs.Wrap(errs.ErrTransientIO, fmt.Sprintf("webhook returned status %d", resp.StatusCode), errs.NewInvariant("channel", "non-2xx response"))
	}
	return nil
}
