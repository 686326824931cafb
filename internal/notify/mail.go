package notify

import (
	"context"
	"fmt"

	"clinicbook/pkg/client"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

// MailChannel delivers messages through a transactional mail HTTP API
// (Resend-style JSON endpoint authenticated with a bearer key).
type MailChannel struct {
	http   *client.HttpClient
	apiKey string
	from   string
	log    *logger.Logger
}

func NewMailChannel(http *client.HttpClient, apiKey, from string, log *logger.Logger) *MailChannel {
	return &MailChannel{
		http:   http,
		apiKey: apiKey,
		from:   from,
		log:    log,
	}
}

func (c *MailChannel) Name() string {
	return "mail"
}

func (c *MailChannel) CanReach(patient model.PatientInfo) bool {
	return patient.Email != ""
}

type mailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

func (c *MailChannel) Send(ctx context.Context, patient model.PatientInfo, msg Message) error {
	req := mailRequest{
		From:    c.from,
		To:      []string{patient.Email},
		Subject: msg.Subject,
		Text:    msg.Body,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}

	resp, err := c.http.POST(ctx, "/emails", req, headers)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}

	if !resp.IsSuccess() {
		c.log.Warn("Mail API rejected message",
			"status", resp.StatusCode,
			"body", string(resp.Body),
		)
		return fmt.Errorf("mail API returned status %d", resp.StatusCode)
	}

	return nil
}
