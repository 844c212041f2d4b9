// Package format builds human-facing invoice identifiers.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

var seqToken = regexp.MustCompile(`\{SEQ(\d*)\}`)

// Number expands {YYYY} {YY} {MM} {DD} and {SEQ}/{SEQn} (zero padded to n digits).
// The date tokens come from the period start so numbers group by billing month.
func Number(template string, periodStart time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := strings.NewReplacer(
		"{YYYY}", periodStart.Format("2006"),
		"{YY}", periodStart.Format("06"),
		"{MM}", periodStart.Format("01"),
		"{DD}", periodStart.Format("02"),
	).Replace(template)

	out = seqToken.ReplaceAllStringFunc(out, func(tok string) string {
		width := seqToken.FindStringSubmatch(tok)[1]
		if width == "" {
			return strconv.FormatInt(seq, 10)
		}
		n, err := strconv.Atoi(width)
		if err != nil || n <= 0 {
			return tok
		}
		return fmt.Sprintf("%0*d", n, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice number: %s", out)
	}
	return out, nil
}

// PDFFilename returns a download-safe name such as "inv-202401-000007-acme-logistics.pdf".
func PDFFilename(number, clientName string) string {
	base := slug.Make(strings.TrimSpace(number + " " + clientName))
	if base == "" {
		base = "invoice"
	}
	return base + ".pdf"
}
