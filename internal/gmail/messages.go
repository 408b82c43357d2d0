package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/k3a/html2text"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxrules/internal/logging"
	"github.com/teemow/inboxrules/internal/rules"
)

// PreviewLength is the number of characters kept in Email.BodyPreview.
const PreviewLength = 200

// FetchEmails returns up to max unread inbox messages as normalized emails.
// Messages whose details cannot be loaded are skipped.
func (c *Client) FetchEmails(ctx context.Context, max int) ([]rules.Email, error) {
	if max <= 0 {
		return []rules.Email{}, nil
	}

	refs, err := c.ListUnreadInbox(ctx, int64(max))
	if err != nil {
		return nil, err
	}

	emails := make([]rules.Email, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := c.GetMessage(ctx, ref.Id)
		if err != nil {
			c.logger.Warn("skipping message", logging.EmailID(ref.Id), logging.Err(err))
			continue
		}
		emails = append(emails, ToEmail(msg))
	}

	return emails, nil
}

// ToEmail normalizes a full Gmail message.
func ToEmail(msg *gmail.Message) rules.Email {
	headers := make(map[string]string)
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			// first occurrence wins
			if _, ok := headers[h.Name]; !ok {
				headers[h.Name] = h.Value
			}
		}
	}

	labels := make([]string, len(msg.LabelIds))
	copy(labels, msg.LabelIds)

	return rules.Email{
		ID:          msg.Id,
		ThreadID:    msg.ThreadId,
		Sender:      headers["From"],
		Subject:     headers["Subject"],
		To:          headers["To"],
		BodyPreview: BodyPreview(messageText(msg.Payload)),
		ReceivedAt:  receivedAt(headers["Date"], msg.InternalDate),
		Labels:      labels,
	}
}

// BodyPreview truncates body to PreviewLength characters, appending "..."
// when anything was cut.
func BodyPreview(body string) string {
	runes := []rune(body)
	if len(runes) <= PreviewLength {
		return body
	}
	return string(runes[:PreviewLength]) + "..."
}

// messageText returns the first text/plain part, falling back to the first
// text/html part converted to plain text.
func messageText(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	var plain, html string
	walkParts(payload, func(part *gmail.MessagePart) {
		if part.Body == nil || part.Body.Data == "" {
			return
		}
		switch part.MimeType {
		case "text/plain":
			if plain == "" {
				plain = part.Body.Data
			}
		case "text/html":
			if html == "" {
				html = part.Body.Data
			}
		}
	})

	if plain != "" {
		if text, err := decodeBody(plain); err == nil {
			return text
		}
	}
	if html != "" {
		if text, err := decodeBody(html); err == nil {
			return html2text.HTML2Text(text)
		}
	}
	return ""
}

// decodeBody decodes base64url-encoded body data, accepting padded,
// unpadded and standard encodings.
func decodeBody(data string) (string, error) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return string(decoded), nil
		}
	}
	return "", fmt.Errorf("failed to decode message body")
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}

// receivedAt parses the Date header, falling back to Gmail's internal date
// and finally to the current time.
func receivedAt(date string, internalDateMillis int64) time.Time {
	if date = strings.TrimSpace(date); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			return t.UTC()
		}
	}
	if internalDateMillis > 0 {
		return time.UnixMilli(internalDateMillis).UTC()
	}
	return time.Now().UTC()
}
