package polymarket

import (
	"net/url"
	"strings"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// ParseRef turns a user-supplied reference into a domain.Ref. Accepted forms:
//
//	market:<slug>  event:<slug>  category:<slug>
//	https://polymarket.com/market/<slug>
//	https://polymarket.com/event/<slug>[/<market-slug>]
//	https://polymarket.com/<category>        (treated as a category)
//	<slug>                                   (treated as a market slug)
func ParseRef(raw string) (domain.Ref, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.Ref{}, &domain.ResolutionError{Ref: raw, Reason: "empty reference"}
	}

	for _, kind := range []domain.RefKind{domain.RefMarket, domain.RefEvent, domain.RefCategory} {
		prefix := string(kind) + ":"
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			slug := cleanSlug(s[len(prefix):])
			if slug == "" {
				return domain.Ref{}, &domain.ResolutionError{Ref: raw, Reason: "missing slug after " + prefix}
			}
			return domain.Ref{Kind: kind, Slug: slug, Raw: raw}, nil
		}
	}

	if strings.Contains(s, "polymarket.com") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return parseURLRef(raw, s)
	}

	slug := cleanSlug(s)
	if slug == "" || strings.ContainsAny(slug, " /") {
		return domain.Ref{}, &domain.ResolutionError{Ref: raw, Reason: "not a market slug or polymarket URL"}
	}
	return domain.Ref{Kind: domain.RefMarket, Slug: slug, Raw: raw}, nil
}

func parseURLRef(raw, s string) (domain.Ref, error) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return domain.Ref{}, &domain.ResolutionError{Ref: raw, Reason: "invalid URL", Err: err}
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "polymarket.com" {
		return domain.Ref{}, &domain.ResolutionError{Ref: raw, Reason: "not a polymarket.com URL"}
	}

	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	// Localized paths: /es/event/..., /fr/market/...
	if len(parts) > 1 && len(parts[0]) == 2 && (parts[1] == "event" || parts[1] == "market") {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return domain.Ref{}, &domain.ResolutionError{Ref: raw, Reason: "URL has no market or event path"}
	}

	switch parts[0] {
	case "market":
		if len(parts) < 2 {
			return domain.Ref{}, &domain.ResolutionError{Ref: raw, Reason: "market URL without slug"}
		}
		return domain.Ref{Kind: domain.RefMarket, Slug: cleanSlug(parts[1]), Raw: raw}, nil
	case "event":
		if len(parts) < 2 {
			return domain.Ref{}, &domain.ResolutionError{Ref: raw, Reason: "event URL without slug"}
		}
		ref := domain.Ref{Kind: domain.RefEvent, Slug: cleanSlug(parts[1]), Raw: raw}
		if len(parts) > 2 {
			ref.MarketSlug = cleanSlug(parts[2])
		}
		return ref, nil
	default:
		return domain.Ref{Kind: domain.RefCategory, Slug: cleanSlug(parts[len(parts)-1]), Raw: raw}, nil
	}
}

func cleanSlug(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, "/")
}
