package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the canonical external date representation.
const DateLayout = "02-01-2006"

// dateTemplate is the placeholder an oracle echoes back when it copies the prompt.
const dateTemplate = "DD-MM-YYYY"

// ErrEmptyAmount is returned when an amount token holds no digits.
var ErrEmptyAmount = errors.New("empty amount")

var (
	digitRun = regexp.MustCompile(`\d+`)
	nonDigit = regexp.MustCompile(`\D`)

	// Leading date shapes accepted by the line grammars:
	// DD-MM-YY(YY), D/M/YY, D.M.YYYY or ISO YYYY-MM-DD.
	datePrefix = regexp.MustCompile(`^(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}|\d{4}-\d{2}-\d{2})\b`)

	// Procedure tails left over from the quantity/amount columns.
	procTailDecimalInt = regexp.MustCompile(`\s+\d+[.,]\d{2}\s+-?\d+\s*$`)
	procTailDecimal    = regexp.MustCompile(`\s+\d+[.,]\d{2}\s*$`)
	procTailHyphen     = regexp.MustCompile(`\s+-\s*$`)

	// Name junk: long digit runs and opaque codes mixing letters and digits.
	junkLongDigits = regexp.MustCompile(`\d{5,}`)
	junkCode       = regexp.MustCompile(`^[A-Z0-9]{6,}$`)
	hasDigit       = regexp.MustCompile(`\d`)
)

// NormalizeDate converts a free-text date token to DD-MM-YYYY.
//
// The token is scanned for digit runs rather than sliced at fixed offsets, so
// "5-6-21", "05/06/2021", "2021-06-05" and "2021-06-05 10:30" all resolve.
// Two-digit years above 80 belong to the 1900s, everything else to the 2000s.
// It returns false for the literal template, for fewer than three digit runs
// and for dates that do not exist on the calendar.
func NormalizeDate(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(strings.ToUpper(token), dateTemplate) {
		return "", false
	}

	runs := digitRun.FindAllString(token, -1)
	if len(runs) < 3 {
		return "", false
	}

	var day, month, year string
	if len(runs[0]) == 4 {
		year, month, day = runs[0], runs[1], runs[2]
	} else {
		day, month, year = runs[0], runs[1], runs[2]
	}

	if len(day) > 2 || len(month) > 2 {
		return "", false
	}
	switch len(year) {
	case 2:
		if year > "80" {
			year = "19" + year
		} else {
			year = "20" + year
		}
	case 4:
	default:
		return "", false
	}

	out := pad2(day) + "-" + pad2(month) + "-" + year
	if _, err := time.Parse(DateLayout, out); err != nil {
		return "", false
	}
	return out, true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// leadingDate returns the date token at the start of a line, or "".
func leadingDate(line string) string {
	return datePrefix.FindString(strings.TrimSpace(line))
}

// startsWithDate checks if a line begins with a date token.
func startsWithDate(line string) bool {
	return leadingDate(line) != ""
}

// RepairInversion reverses the rune order of a line when it carries one of
// the reversed marker fragments. Lines without a marker are returned as is.
func RepairInversion(line string, markers []string) string {
	upper := strings.ToUpper(line)
	for _, m := range markers {
		if m != "" && strings.Contains(upper, strings.ToUpper(m)) {
			return reverseRunes(line)
		}
	}
	return line
}

func reverseRunes(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// NormalizeAmount parses amounts such as "1,125.20", "-121.41", "45.5" or
// "1.125,20". The sign is preserved.
func NormalizeAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"€", "$", "£", "EUR", "\u00A0", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}
	if !hasDigit.MatchString(s) {
		return decimal.Zero, ErrEmptyAmount
	}

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			// 1.125,20
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,125.20
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals and a comma separator,
// the way the billing sheets expect it ("1125,20", "-121,41").
func FormatAmount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

// CleanName uppercases a person name, collapses whitespace and drops junk
// tokens: long digit runs, opaque letter/digit codes and the given
// boilerplate fragments. Multi-word fragments are cut out of the text,
// single-word fragments remove every token that contains them.
func CleanName(text string, fragments []string) string {
	text = strings.ToUpper(norm.NFC.String(text))
	var words []string
	for _, f := range fragments {
		f = strings.ToUpper(strings.TrimSpace(f))
		switch {
		case f == "":
		case strings.Contains(f, " "):
			text = strings.ReplaceAll(text, f, " ")
		default:
			words = append(words, f)
		}
	}

	var kept []string
	for _, tok := range strings.Fields(text) {
		if junkLongDigits.MatchString(tok) {
			continue
		}
		if junkCode.MatchString(tok) && hasDigit.MatchString(tok) {
			continue
		}
		if containsAny(tok, words) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// CleanProcedure strips numeric remnants of the quantity and amount columns
// and a trailing hyphen left by line wrapping.
func CleanProcedure(text string) string {
	text = strings.TrimSpace(text)
	text = procTailDecimalInt.ReplaceAllString(text, "")
	text = procTailDecimal.ReplaceAllString(text, "")
	text = procTailHyphen.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// DigitsOnly strips every non-digit character.
func DigitsOnly(id string) string {
	return nonDigit.ReplaceAllString(id, "")
}

// validName reports whether a cleaned name is long enough to be a person.
func validName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) > 3
}
