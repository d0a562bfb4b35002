// Package redact keeps personal data and credentials out of the logs.
// The deployment forwards logs to shared CI output and monitoring, so
// email addresses, Spanish tax IDs, phone numbers, bearer and OAuth
// tokens and secret URL query values are masked before they reach the
// sink. Enough of each value survives to correlate log lines.
package redact

import (
	"io"
	"regexp"
	"strings"
)

const mask = "[REDACTED]"

var (
	emailRE = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	// Spanish CIF (letter + 8 digits), NIE (X/Y/Z style handled by the
	// trailing-letter form) and DNI (8 digits + letter).
	taxIDRE = regexp.MustCompile(`(?i)\b(?:[A-HJ-NP-SUVW]\d{8}|[KLMXYZ]\d{7}[A-Z]|\d{8}[A-HJ-NP-TV-Z])\b`)

	phoneRE = regexp.MustCompile(`(?:(?:\+34|0034)[\s-]?)?\b[6789]\d{2}(?:[\s-]?\d){6}\b`)

	bearerRE = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]+=*`)

	kvSecretRE = regexp.MustCompile(`(?i)\b(refresh_token|access_token|api_key|app_secret|client_secret|signing_secret|password|token|secret)(["']?\s*[:=]\s*["']?)([^\s"'&,;]+)`)

	querySecretRE = regexp.MustCompile(`(?i)([?&](?:[a-z_]*(?:token|secret|key|signature|password|sig|code))=)([^&\s"']+)`)
)

// Mask returns s with sensitive values obscured.
func Mask(s string) string {
	if s == "" {
		return s
	}
	s = querySecretRE.ReplaceAllString(s, "${1}"+mask)
	s = bearerRE.ReplaceAllString(s, "Bearer "+mask)
	s = kvSecretRE.ReplaceAllString(s, "${1}${2}"+mask)
	s = emailRE.ReplaceAllStringFunc(s, maskEmail)
	s = taxIDRE.ReplaceAllStringFunc(s, maskTaxID)
	s = phoneRE.ReplaceAllStringFunc(s, maskPhone)
	return s
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(m string) string {
	at := strings.IndexByte(m, '@')
	if at < 1 {
		return mask
	}
	return m[:1] + strings.Repeat("*", at-1) + m[at:]
}

// maskTaxID keeps the first two and the last character.
func maskTaxID(m string) string {
	if len(m) < 4 {
		return mask
	}
	return m[:2] + strings.Repeat("*", len(m)-3) + m[len(m)-1:]
}

// maskPhone keeps the prefix, enough to tell mobile from landline.
func maskPhone(m string) string {
	if len(m) < 6 {
		return mask
	}
	return m[:3] + strings.Repeat("*", len(m)-3)
}

// Writer masks everything written through it before passing it on.
type Writer struct {
	dst io.Writer
}

// NewWriter wraps the log sink.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst}
}

// Write reports the input length as consumed even though masking may
// change the byte count, as io.Writer wrappers must.
func (w *Writer) Write(p []byte) (int, error) {
	if _, err := w.dst.Write([]byte(Mask(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
