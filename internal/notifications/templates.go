package notifications

import (
	"fmt"
	"strings"

	"github.com/geocoder89/invoicehub/internal/domain/invoice"
)

const (
	subjectOverdue  = "Invoice Overdue Notice"
	subjectReminder = "Payment Reminder"

	dueDateLayout = "Jan 2, 2006"
)

// Field values are interpolated as-is.
func overdueEmail(inv invoice.Invoice, to, senderName string) Message {
	html := fmt.Sprintf(`
<h1>Invoice Overdue Notice</h1>
<p>Dear %s,</p>
<p>This is a reminder that invoice %s for amount $%.2f is overdue.</p>
<p>Due Date: %s</p>
<p>Please process the payment as soon as possible.</p>
<br>
<p>Best regards,</p>
<p>%s</p>
`, to, inv.InvoiceID, inv.Amount, inv.DueDate.Format(dueDateLayout), senderName)

	return Message{To: to, Subject: subjectOverdue, HTML: html, Text: generatePlainText(html)}
}

func reminderEmail(inv invoice.Invoice, to, senderName string) Message {
	html := fmt.Sprintf(`
<h1>Payment Reminder</h1>
<p>Dear %s,</p>
<p>This is a friendly reminder about invoice %s for amount $%.2f.</p>
<p>Due Date: %s</p>
<p>Please process the payment before the due date.</p>
<br>
<p>Best regards,</p>
<p>%s</p>
`, to, inv.InvoiceID, inv.Amount, inv.DueDate.Format(dueDateLayout), senderName)

	return Message{To: to, Subject: subjectReminder, HTML: html, Text: generatePlainText(html)}
}

// generatePlainText strips tags from the HTML body for the text/plain part.
func generatePlainText(html string) string {
	text := html

	for _, tag := range []string{"<br>", "<br/>", "<br />"} {
		text = strings.ReplaceAll(text, tag, "\n")
	}
	for _, tag := range []string{"</p>", "</h1>", "</h2>"} {
		text = strings.ReplaceAll(text, tag, "\n\n")
	}

	for {
		start := strings.Index(text, "<")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], ">")
		if end < 0 {
			break
		}
		text = text[:start] + text[start+end+1:]
	}

	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`).Replace(text)

	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}
