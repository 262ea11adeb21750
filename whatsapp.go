// Package tripflow - whatsapp.go
// WhatsApp Cloud API integration: outbound text messages via the Graph
// API and the inbound webhook payload types.

package tripflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const graphAPIBase = "https://graph.facebook.com/v19.0"

// WhatsAppClient sends text messages through the WhatsApp Cloud API.
type WhatsAppClient struct {
	token       string
	phoneID     string
	baseURL     string
	verifyToken string
	httpClient  *http.Client
}

func NewWhatsAppClient(token, phoneID, verifyToken string) *WhatsAppClient {
	return &WhatsAppClient{
		token:       token,
		phoneID:     phoneID,
		baseURL:     graphAPIBase,
		verifyToken: verifyToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// VerifyToken reports whether the webhook subscription token matches.
func (c *WhatsAppClient) VerifyToken(token string) bool {
	return c.verifyToken != "" && token == c.verifyToken
}

type whatsAppSendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             whatsAppTextBody `json:"text"`
}

type whatsAppTextBody struct {
	Body string `json:"body"`
}

// SendText delivers a plain-text message to the given phone number.
func (c *WhatsAppClient) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(whatsAppSendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             whatsAppTextBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("encoding whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp send failed with status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// WhatsAppWebhook is the envelope Meta posts to the webhook endpoint.
type WhatsAppWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Contacts         []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// InboundMessage is one user text extracted from a webhook envelope.
type InboundMessage struct {
	From string
	Name string
	Text string
}

// TextMessages flattens the webhook envelope into the text messages it
// carries. Non-text messages and status updates are skipped.
func (w *WhatsAppWebhook) TextMessages() []InboundMessage {
	if w.Object != "whatsapp_business_account" {
		return nil
	}
	var out []InboundMessage
	for _, entry := range w.Entry {
		for _, change := range entry.Changes {
			names := map[string]string{}
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" {
					continue
				}
				out = append(out, InboundMessage{
					From: msg.From,
					Name: names[msg.From],
					Text: msg.Text.Body,
				})
			}
		}
	}
	return out
}
