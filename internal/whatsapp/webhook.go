package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/user/waclaw/internal/types"
)

// Payload is the Cloud API webhook delivery envelope, reduced to the fields
// this system reads.
type Payload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []Message `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Message is one inbound message inside a webhook delivery.
type Message struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Image struct {
		ID       string `json:"id"`
		Caption  string `json:"caption"`
		MimeType string `json:"mime_type"`
	} `json:"image"`
	Audio struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
	} `json:"audio"`
}

// VerifySignature validates the raw request body against Meta's
// X-Hub-Signature-256 header (sha256=<hex> HMAC with the app secret).
func VerifySignature(appSecret string, body []byte, header string) error {
	sig := strings.TrimSpace(header)
	if sig == "" {
		return fmt.Errorf("missing X-Hub-Signature-256")
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return fmt.Errorf("invalid X-Hub-Signature-256 format")
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return fmt.Errorf("invalid signature hex")
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// ExtractEvents lifts the messages out of a webhook payload into inbound
// events. Media messages get their prompt parts fixed here, at ingestion;
// the media itself is never downloaded or transcribed.
func ExtractEvents(payload Payload) []*types.InboundEvent {
	var out []*types.InboundEvent

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if strings.TrimSpace(change.Field) != "messages" {
				continue
			}
			for _, m := range change.Value.Messages {
				if event := toEvent(m); event != nil {
					out = append(out, event)
				}
			}
		}
	}
	return out
}

func toEvent(m Message) *types.InboundEvent {
	sender := types.WaID(strings.TrimSpace(m.From))
	if sender == "" {
		return nil
	}

	event := &types.InboundEvent{
		ID:         types.NewEventID(),
		Sender:     sender,
		ReceivedAt: time.Now(),
	}

	switch strings.ToLower(strings.TrimSpace(m.Type)) {
	case "text":
		body := strings.TrimSpace(m.Text.Body)
		if body == "" {
			return nil
		}
		event.Type = types.MessageTypeText
		event.Text = body
	case "image":
		event.Type = types.MessageTypeImage
		caption := strings.TrimSpace(m.Image.Caption)
		if caption == "" {
			caption = "(no caption)"
		}
		event.Text = caption
		event.PromptParts = []types.PromptPart{{
			Role:    types.RoleUser,
			Content: fmt.Sprintf("The user sent an image (media id %s). Caption: %s", m.Image.ID, caption),
		}}
	case "audio":
		event.Type = types.MessageTypeAudio
		event.Text = "(voice message)"
		event.PromptParts = []types.PromptPart{{
			Role:    types.RoleUser,
			Content: fmt.Sprintf("The user sent a voice message (media id %s) that cannot be played back here. Ask them to type it out.", m.Audio.ID),
		}}
	default:
		return nil
	}
	return event
}
