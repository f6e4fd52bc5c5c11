package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sbnz-social/modguard/moderation/event"
)

type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendFlags(ctx context.Context, flags []event.Flag) error {
	if len(flags) == 0 {
		return nil
	}
	return n.sendSlackMsg(ctx, slackBody(flags))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(flags []event.Flag) string {
	msg := fmt.Sprintf("⚠️ Moderation: %d new suspension(s) ⚠️\n", len(flags))
	for _, f := range flags {
		if f.SuspendedUntil.IsZero() {
			msg += fmt.Sprintf("`%s`: %s\n", f.UserID, f.Reason)
			continue
		}
		msg += fmt.Sprintf("`%s`: %s (until %s)\n", f.UserID, f.Reason, f.SuspendedUntil.UTC().Format(time.RFC3339))
	}
	return msg
}
