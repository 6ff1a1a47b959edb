// internal/model/campaign.go
package model

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
)

// Campaign is matched against the local part of inbound recipient addresses.
// Rows are administered externally and only read by the inbox pipeline.
type Campaign struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Title          string     `db:"title" json:"title"`
	ContactEmail   string     `db:"contact_email" json:"contact_email"`
	UnsubscribeMsg string     `db:"unsubscribe_msg" json:"unsubscribe_msg,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Frequency says when an AutoResponder fires. The set is open: values the
// dispatcher does not know about are stored as-is and never fire.
type Frequency string

const (
	FrequencyFirstTime Frequency = "first_time"
)

type AutoResponder struct {
	ID         int64       `db:"id" json:"id"`
	CampaignID int64       `db:"campaign_id" json:"campaign_id"`
	Name       string      `db:"name" json:"name"`
	Frequency  Frequency   `db:"frequency" json:"frequency"`
	Templates  []*Template `db:"-" json:"templates,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// Template bodies use {unsubscribe} as the unsubscribe URL placeholder.
type Template struct {
	ID          int64    `db:"id" json:"id"`
	ResponderID int64    `db:"responder_id" json:"responder_id"`
	Name        string   `db:"name" json:"name"`
	Body        string   `db:"body" json:"body"`
	Language    string   `db:"language" json:"language,omitempty"`
	Keywords    []string `db:"keywords" json:"keywords,omitempty"`
	IsDefault   bool     `db:"is_default" json:"is_default"`
	Position    int      `db:"position" json:"position"`
}

// GetTemplate picks the template to answer body with. Keyword matches win,
// then a template whose language is written in the body's dominant script,
// then the default template, then the first one.
func (r *AutoResponder) GetTemplate(body string) (*Template, error) {
	templates := make([]*Template, 0, len(r.Templates))
	for _, t := range r.Templates {
		if t != nil {
			templates = append(templates, t)
		}
	}
	if len(templates) == 0 {
		return nil, appErrors.NewNoTemplate(r.ID)
	}
	sort.SliceStable(templates, func(i, j int) bool {
		return templates[i].Position < templates[j].Position
	})

	lower := strings.ToLower(body)
	for _, t := range templates {
		for _, kw := range t.Keywords {
			kw = strings.TrimSpace(kw)
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return t, nil
			}
		}
	}

	if script, ok := dominantScript(body); ok {
		for _, t := range templates {
			if t.Language == "" {
				continue
			}
			tag, err := language.Parse(t.Language)
			if err != nil {
				continue
			}
			if s, conf := tag.Script(); conf != language.No && s == script {
				return t, nil
			}
		}
	}

	for _, t := range templates {
		if t.IsDefault {
			return t, nil
		}
	}
	return templates[0], nil
}

var scriptTables = []struct {
	code  string
	table *unicode.RangeTable
}{
	{"Latn", unicode.Latin},
	{"Cyrl", unicode.Cyrillic},
	{"Grek", unicode.Greek},
	{"Arab", unicode.Arabic},
	{"Hebr", unicode.Hebrew},
	{"Deva", unicode.Devanagari},
	{"Beng", unicode.Bengali},
	{"Guru", unicode.Gurmukhi},
	{"Gujr", unicode.Gujarati},
	{"Taml", unicode.Tamil},
	{"Telu", unicode.Telugu},
	{"Knda", unicode.Kannada},
	{"Mlym", unicode.Malayalam},
	{"Thai", unicode.Thai},
	{"Jpan", unicode.Hiragana},
	{"Jpan", unicode.Katakana},
	{"Kore", unicode.Hangul},
	{"Hans", unicode.Han},
}

func dominantScript(body string) (language.Script, bool) {
	counts := make(map[string]int)
	for _, r := range body {
		if !unicode.IsLetter(r) {
			continue
		}
		for _, s := range scriptTables {
			if unicode.Is(s.table, r) {
				counts[s.code]++
				break
			}
		}
	}

	// Japanese mixes kanji with kana; any kana claims the Han letters too.
	if counts["Jpan"] > 0 {
		counts["Jpan"] += counts["Hans"]
		counts["Hans"] = 0
	}

	best, max := "", 0
	for _, s := range scriptTables {
		if counts[s.code] > max {
			best, max = s.code, counts[s.code]
		}
	}
	if best == "" {
		return language.Script{}, false
	}
	script, err := language.ParseScript(best)
	if err != nil {
		return language.Script{}, false
	}
	return script, true
}
