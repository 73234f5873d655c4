package discovery

import (
	"net/url"
	"strings"
)

// TrustedDomains are the publishers whose pages may enter the knowledge index.
var TrustedDomains = []string{
	"kdigo.org",
	"kidney.org",
	"niddk.nih.gov",
	"nice.org.uk",
	"ncbi.nlm.nih.gov",
	"cdc.gov",
	"who.int",
}

// FilterToTrustedDomains keeps URLs whose host is, or is a subdomain of, one of domains.
func FilterToTrustedDomains(urls []string, domains []string) []string {
	if len(domains) == 0 {
		return urls
	}

	var filtered []string
	for _, urlStr := range urls {
		if IsFromDomain(urlStr, domains) {
			filtered = append(filtered, urlStr)
		}
	}
	return filtered
}

// IsFromDomain reports whether urlStr belongs to one of domains.
func IsFromDomain(urlStr string, domains []string) bool {
	host := extractDomainFromURL(urlStr)
	if host == "" {
		return false
	}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(d, "www."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// extractDomainFromURL extracts the lower-cased host without a leading www.
func extractDomainFromURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	// Prepend scheme if missing
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}
