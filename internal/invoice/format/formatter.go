package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const (
	MonthlyNumberTemplate       = "LG-{YYYY}-{MM}-{CODE}{SEQ3}"
	ParticipationNumberTemplate = "LG-BET-{YYYY}-{CODE}{SEQ3}"
)

// InvoiceNumber formats a human-readable invoice number from a template, the
// billed period, the broker code and a monotonic sequence.
func InvoiceNumber(template string, period time.Time, code string, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", period.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", period.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", period.Format("01"))
	out = strings.ReplaceAll(out, "{CODE}", BrokerCode(code))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// BrokerCode upper-cases the billing code and drops everything that is not a
// letter or digit.
func BrokerCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
