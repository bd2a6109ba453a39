// Package i18n negotiates the response language and holds the fixed error messages.
package i18n

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/nirvana-iot/catalog-api/internal/platform/requestctx"
)

const (
	English = "en"
	Arabic  = "ar"
)

var (
	supported = []language.Tag{language.English, language.Arabic}
	matcher   = language.NewMatcher(supported)
)

// Locale is a negotiated response language.
type Locale struct {
	Lang string
}

// Dir returns the text direction used by the storefront for the locale.
func (l Locale) Dir() string {
	if l.Lang == Arabic {
		return "rtl"
	}
	return "ltr"
}

// Pick returns the variant for the locale, falling back to the other one when it is empty.
func (l Locale) Pick(en, ar string) string {
	if l.Lang == Arabic {
		if strings.TrimSpace(ar) != "" {
			return ar
		}
		return en
	}
	if strings.TrimSpace(en) != "" {
		return en
	}
	return ar
}

// PickList is Pick for bullet lists.
func (l Locale) PickList(en, ar []string) []string {
	primary, secondary := en, ar
	if l.Lang == Arabic {
		primary, secondary = ar, en
	}
	if len(primary) > 0 {
		return primary
	}
	if secondary == nil {
		return []string{}
	}
	return secondary
}

// Negotiate resolves the language from an explicit lang value, then Accept-Language. English wins ties.
func Negotiate(explicit, acceptLanguage string) Locale {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if tag, err := language.Parse(explicit); err == nil {
			return match(tag)
		}
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Locale{Lang: English}
	}
	return match(tags...)
}

func match(tags ...language.Tag) Locale {
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return Locale{Lang: English}
	}
	if supported[index] == language.Arabic {
		return Locale{Lang: Arabic}
	}
	return Locale{Lang: English}
}

// FromContext returns the locale stored by Middleware, defaulting to English.
func FromContext(ctx context.Context) Locale {
	if requestctx.Locale(ctx) == Arabic {
		return Locale{Lang: Arabic}
	}
	return Locale{Lang: English}
}

// Middleware negotiates the locale from ?lang= and Accept-Language and stores it on the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := Negotiate(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", locale.Lang)
		w.Header().Add("Vary", "Accept-Language")
		next.ServeHTTP(w, r.WithContext(requestctx.WithLocale(r.Context(), locale.Lang)))
	})
}
