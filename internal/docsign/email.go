package docsign

import (
	"fmt"
	"html"
)

// SigningEmail builds the message that delivers a signing link.
func SigningEmail(documentName, to, link string) Email {
	name := html.EscapeString(documentName)
	href := html.EscapeString(link)
	body := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Document Ready for Signature</h2>
  <p>You have been asked to sign <strong>%s</strong>.</p>
  <p><a href="%s" style="display: inline-block; padding: 10px 20px; background: #2563eb; color: #fff; text-decoration: none; border-radius: 6px;">Review and sign</a></p>
  <p>Or open this link: <a href="%s">%s</a></p>
</div>`, name, href, href, href)

	return Email{
		To:      to,
		Subject: fmt.Sprintf("Document Ready for Signature: %s", documentName),
		HTML:    body,
	}
}
