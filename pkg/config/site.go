package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// SiteConfig describes one target site. Patterns are regular expressions,
// compiled once by Compile.
type SiteConfig struct {
	Name                    string   `json:"name"`
	Brand                   string   `json:"brand"`
	Seeds                   []string `json:"seeds"`
	ProductPattern          string   `json:"product_pattern"`
	ReferencePattern        string   `json:"reference_pattern,omitempty"`
	URLReferencePattern     string   `json:"url_reference_pattern,omitempty"`
	// URLReferenceRewrite and URLReferenceReplacement turn a URL slug into
	// the canonical spelling, e.g. 5711-1a-010 into 5711/1a-010.
	URLReferenceRewrite     string   `json:"url_reference_rewrite,omitempty"`
	URLReferenceReplacement string   `json:"url_reference_replacement,omitempty"`
	Collections             []string `json:"collections,omitempty"`
	ImageKeywords           []string `json:"image_keywords,omitempty"`
	UploadFolder            string   `json:"upload_folder,omitempty"`
	MaxScrolls              int      `json:"max_scrolls,omitempty"`
	StableTicks             int      `json:"stable_ticks,omitempty"`
	Static                  bool     `json:"static,omitempty"`

	productRe      *regexp.Regexp
	referenceRe    *regexp.Regexp
	urlReferenceRe *regexp.Regexp
	urlRewriteRe   *regexp.Regexp
}

// DefaultReferencePattern matches manufacturer style references such as
// 26240ST.OO.1320ST.02 or 5711/1A-010.
const DefaultReferencePattern = `\b\d{4,5}[A-Z]{0,3}(?:[./-][A-Z0-9]{1,6}){0,4}\b`

func LoadSiteConfigs(filePath string) ([]SiteConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read site config file %s: %w", filePath, err)
	}

	var configs []SiteConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal site config JSON from %s: %w", filePath, err)
	}

	for i := range configs {
		if err := configs[i].Compile(); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

// Compile applies defaults and compiles the site's patterns.
func (s *SiteConfig) Compile() error {
	if s.ProductPattern == "" {
		return fmt.Errorf("site %q: product_pattern is required", s.Name)
	}
	if s.ReferencePattern == "" {
		s.ReferencePattern = DefaultReferencePattern
	}
	if s.MaxScrolls == 0 {
		s.MaxScrolls = 40
	}
	if s.StableTicks == 0 {
		s.StableTicks = 3
	}
	if s.UploadFolder == "" {
		s.UploadFolder = strings.ToLower(strings.ReplaceAll(s.Name, " ", "-"))
	}

	var err error
	if s.productRe, err = regexp.Compile(s.ProductPattern); err != nil {
		return fmt.Errorf("site %q: product_pattern: %w", s.Name, err)
	}
	if s.referenceRe, err = regexp.Compile(s.ReferencePattern); err != nil {
		return fmt.Errorf("site %q: reference_pattern: %w", s.Name, err)
	}
	if s.URLReferencePattern != "" {
		if s.urlReferenceRe, err = regexp.Compile(s.URLReferencePattern); err != nil {
			return fmt.Errorf("site %q: url_reference_pattern: %w", s.Name, err)
		}
	}
	if s.URLReferenceRewrite != "" {
		if s.urlRewriteRe, err = regexp.Compile(s.URLReferenceRewrite); err != nil {
			return fmt.Errorf("site %q: url_reference_rewrite: %w", s.Name, err)
		}
	}
	return nil
}

func (s *SiteConfig) ProductRe() *regexp.Regexp   { return s.productRe }
func (s *SiteConfig) ReferenceRe() *regexp.Regexp { return s.referenceRe }

// URLReferenceRe may be nil, in which case references are never derived from URLs.
func (s *SiteConfig) URLReferenceRe() *regexp.Regexp { return s.urlReferenceRe }

// RewriteURLReference applies the site's slug rewrite, if any.
func (s *SiteConfig) RewriteURLReference(ref string) string {
	if s.urlRewriteRe == nil || ref == "" {
		return ref
	}
	return s.urlRewriteRe.ReplaceAllString(ref, s.URLReferenceReplacement)
}

// FindSite picks a site by case-insensitive name.
func FindSite(sites []SiteConfig, name string) (*SiteConfig, bool) {
	for i := range sites {
		if strings.EqualFold(sites[i].Name, name) {
			return &sites[i], true
		}
	}
	return nil, false
}
