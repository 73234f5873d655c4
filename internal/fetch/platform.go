// Package fetch - platform.go recognises guideline publishers and their page layouts.
package fetch

import (
	"net/url"
	"strings"
)

// Publisher is a known source of kidney-disease guidance.
type Publisher string

const (
	// PublisherKDIGO is Kidney Disease: Improving Global Outcomes
	PublisherKDIGO Publisher = "kdigo"
	// PublisherNKF is the National Kidney Foundation
	PublisherNKF Publisher = "nkf"
	// PublisherNIDDK is the US National Institute of Diabetes and Digestive and Kidney Diseases
	PublisherNIDDK Publisher = "niddk"
	// PublisherNICE is the UK National Institute for Health and Care Excellence
	PublisherNICE Publisher = "nice"
	// PublisherPubMed covers PubMed and PubMed Central articles
	PublisherPubMed Publisher = "pubmed"
	// PublisherUnknown is an unrecognized publisher
	PublisherUnknown Publisher = "unknown"
)

// DetectPublisher identifies the guideline publisher from a URL.
func DetectPublisher(urlStr string) Publisher {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PublisherUnknown
	}

	host := strings.ToLower(parsed.Host)
	switch {
	case strings.HasSuffix(host, "kdigo.org"):
		return PublisherKDIGO
	case strings.HasSuffix(host, "kidney.org"):
		return PublisherNKF
	case strings.HasSuffix(host, "niddk.nih.gov"):
		return PublisherNIDDK
	case strings.HasSuffix(host, "nice.org.uk"):
		return PublisherNICE
	case strings.Contains(host, "pubmed.ncbi.nlm.nih.gov"), strings.Contains(host, "ncbi.nlm.nih.gov"):
		return PublisherPubMed
	default:
		return PublisherUnknown
	}
}

// PublisherContentSelectors returns content selectors for a publisher's page layout.
func PublisherContentSelectors(p Publisher) []string {
	switch p {
	case PublisherKDIGO:
		return []string{".entry-content", "article", "main"}
	case PublisherNKF:
		return []string{".field--name-body", ".node__content", "article", "main"}
	case PublisherNIDDK:
		return []string{"#main-content", ".content-area", "main"}
	case PublisherNICE:
		return []string{".chapter", "#contentArea", "main"}
	case PublisherPubMed:
		return []string{"#abstract", ".abstract", "#maincontent", "article"}
	default:
		return DefaultTextSelectors()
	}
}

// PublisherNoiseSelectors returns noise exclusion selectors for a publisher.
func PublisherNoiseSelectors(p Publisher) []string {
	common := []string{
		"form",
		".social-share",
		".share-buttons",
		".cookie-banner",
		".cookie-consent",
		".newsletter-signup",
		".donate-banner",
	}

	switch p {
	case PublisherPubMed:
		return append(common, ".similar-articles", ".cited-by", "#references", ".article-source")
	case PublisherNKF:
		return append(common, ".donate", ".related-content")
	case PublisherNICE:
		return append(common, ".page-header__breadcrumbs", ".in-page-nav")
	default:
		return common
	}
}
