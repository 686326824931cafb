package notify

import (
	"context"
	"fmt"
	"net/url"

	"clinicbook/pkg/client"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

// WhatsAppChannel delivers messages through Twilio's WhatsApp API. Twilio
// authenticates with basic auth (account SID / auth token) and accepts only
// form-encoded bodies.
type WhatsAppChannel struct {
	http       *client.HttpClient
	accountSID string
	from       string
	log        *logger.Logger
}

func NewWhatsAppChannel(http *client.HttpClient, accountSID, from string, log *logger.Logger) *WhatsAppChannel {
	return &WhatsAppChannel{
		http:       http,
		accountSID: accountSID,
		from:       from,
		log:        log,
	}
}

func (c *WhatsAppChannel) Name() string {
	return "whatsapp"
}

func (c *WhatsAppChannel) CanReach(patient model.PatientInfo) bool {
	return patient.Phone != ""
}

func (c *WhatsAppChannel) Send(ctx context.Context, patient model.PatientInfo, msg Message) error {
	form := url.Values{}
	form.Set("From", "whatsapp:"+c.from)
	form.Set("To", "whatsapp:"+patient.Phone)
	form.Set("Body", msg.Body)

	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.accountSID)
	resp, err := c.http.POSTForm(ctx, path, form, nil)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}

	if !resp.IsSuccess() {
		c.log.Warn("Twilio rejected WhatsApp message",
			"status", resp.StatusCode,
			"body", string(resp.Body),
		)
		return fmt.Errorf("twilio returned status %d", resp.StatusCode)
	}

	return nil
}
