package provider

import (
	"html"
	"net/mail"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	nethtml "golang.org/x/net/html"
)

// DefaultPhoneRegion is used for numbers given without a country prefix.
const DefaultPhoneRegion = "SE"

// CleanString decodes entities, strips markup and control characters,
// forces valid UTF-8 and trims surrounding whitespace. Entities are decoded
// first so encoded markup is stripped too.
func CleanString(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")
	s = stripTags(html.UnescapeString(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return -1
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// stripTags keeps only the text nodes of s. Script and style bodies are dropped.
func stripTags(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	z := nethtml.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			return b.String()
		case nethtml.TextToken:
			if skip == 0 {
				b.Write(z.Raw())
			}
		case nethtml.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li":
				b.WriteByte('\n')
			}
		case nethtml.EndTagToken:
			name, _ := z.TagName()
			if n := string(name); (n == "script" || n == "style") && skip > 0 {
				skip--
			}
		case nethtml.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte('\n')
			}
		}
	}
}

// CleanPhone normalizes a phone number to E.164 ("+4642183270").
// Unparseable input returns "".
func CleanPhone(s string) string {
	s = CleanString(s)
	if s == "" {
		return ""
	}
	num, err := phonenumbers.Parse(s, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// CleanEmail returns the bare address when s is a syntactically valid
// e-mail address, "" otherwise.
func CleanEmail(s string) string {
	s = CleanString(s)
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return ""
	}
	domain := addr.Address[strings.LastIndex(addr.Address, "@")+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return ""
	}
	return strings.ToLower(addr.Address)
}

// ImportClient formats the provenance tag, e.g. "CBIS: Arena".
func ImportClient(provider, category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return provider
	}
	r := []rune(category)
	r[0] = unicode.ToUpper(r[0])
	return provider + ": " + string(r)
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Excluded reports whether every category is on the exclusion list.
// Records without categories are never excluded.
func Excluded(categories, exclude []string) bool {
	if len(categories) == 0 || len(exclude) == 0 {
		return false
	}
	for _, c := range categories {
		if !containsFold(exclude, c) {
			return false
		}
	}
	return true
}

// FilterCategories removes excluded categories and cleans the rest.
func FilterCategories(categories, exclude []string) []string {
	var out []string
	for _, c := range categories {
		c = CleanString(c)
		if c == "" || containsFold(exclude, c) || containsFold(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
