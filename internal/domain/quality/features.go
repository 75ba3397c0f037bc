package quality

import (
	"strconv"
	"strings"

	"github.com/osena/curator/internal/domain/model"
)

// FeatureVector is the fixed, explicitly-ordered numeric input schema for the
// regression model. Field order must never change between training and
// prediction; additions go at the end. Missing candidate fields default to
// zero, never an error.
type FeatureVector struct {
	WordCount            float64
	CharCount            float64
	TitleLength          float64
	TitleWordCount       float64
	HeadingCount         float64
	ParagraphCount       float64
	ListCount            float64
	ImageCount           float64
	SpecFieldCount       float64
	TagCount             float64
	AvgWordsPerParagraph float64
	NumericTokenDensity  float64
	SourceWeb            float64 // 1 when the item came from a web listing source
	SourceFeed           float64 // 1 when the item came from a feed source
	ProviderKnown        float64 // 1 when the provider is in the known set
	BrandPopular         float64 // 1 when specs name a popular brand
	PriceSegment         float64 // 0 unknown, 1 budget, 2 mid, 3 premium
	RedFlagCount         float64
}

// featureNames mirrors FeatureVector field order.
var featureNames = []string{
	"word_count", "char_count", "title_length", "title_word_count",
	"heading_count", "paragraph_count", "list_count", "image_count",
	"spec_field_count", "tag_count", "avg_words_per_paragraph",
	"numeric_token_density", "source_web", "source_feed", "provider_known",
	"brand_popular", "price_segment", "red_flag_count",
}

// knownProviders and popularBrands drive the one-hot flags.
var knownProviders = map[string]bool{
	"newswire": true, "blogfeed": true, "vendor": true, "community": true,
}

var popularBrands = map[string]bool{
	"acme": true, "northstar": true, "vertex": true, "halcyon": true, "orbita": true,
}

// Price segment boundaries.
const (
	budgetPriceMax = 100
	midPriceMax    = 600
)

// FeatureNames returns the ordered feature names persisted with model
// artifacts so schema drift is detectable.
func FeatureNames() []string {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return names
}

// ExtractFeatures builds the feature vector for a candidate.
func ExtractFeatures(c *model.Candidate) FeatureVector {
	doc := AnalyzeBody(c.Body)

	f := FeatureVector{
		WordCount:      float64(doc.WordCount),
		CharCount:      float64(doc.CharCount),
		TitleLength:    float64(len(strings.TrimSpace(c.Title))),
		TitleWordCount: float64(len(strings.Fields(c.Title))),
		HeadingCount:   float64(doc.HeadingCount),
		ParagraphCount: float64(doc.ParagraphCount),
		ListCount:      float64(doc.ListCount),
		ImageCount:     float64(maxInt(c.ImageCount, doc.ImageCount)),
		SpecFieldCount: float64(filledSpecCount(c.Specs)),
		TagCount:       float64(len(c.Tags)),
	}

	if doc.ParagraphCount > 0 {
		f.AvgWordsPerParagraph = float64(doc.WordCount) / float64(doc.ParagraphCount)
	}
	f.NumericTokenDensity = numericTokenDensity(doc.Text)

	switch strings.ToLower(c.Source) {
	case "", "web":
		f.SourceWeb = 1
	case "feed", "rss":
		f.SourceFeed = 1
	}
	if knownProviders[strings.ToLower(c.Provider)] {
		f.ProviderKnown = 1
	}
	if popularBrands[strings.ToLower(strings.TrimSpace(c.Specs["brand"]))] {
		f.BrandPopular = 1
	}
	f.PriceSegment = priceSegment(c.Specs["price"])

	if hasRedFlags(c.Body, doc) {
		f.RedFlagCount = 1
	}

	return f
}

// Slice returns the vector in the canonical feature order.
func (f FeatureVector) Slice() []float64 {
	return []float64{
		f.WordCount, f.CharCount, f.TitleLength, f.TitleWordCount,
		f.HeadingCount, f.ParagraphCount, f.ListCount, f.ImageCount,
		f.SpecFieldCount, f.TagCount, f.AvgWordsPerParagraph,
		f.NumericTokenDensity, f.SourceWeb, f.SourceFeed, f.ProviderKnown,
		f.BrandPopular, f.PriceSegment, f.RedFlagCount,
	}
}

// numericTokenDensity is the fraction of whitespace tokens containing digits.
func numericTokenDensity(text string) float64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}
	numeric := 0
	for _, tok := range tokens {
		if strings.ContainsAny(tok, "0123456789") {
			numeric++
		}
	}
	return float64(numeric) / float64(len(tokens))
}

// priceSegment buckets a spec price string; unparseable prices are unknown.
func priceSegment(raw string) float64 {
	cleaned := strings.TrimFunc(strings.TrimSpace(raw), func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if cleaned == "" {
		return 0
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || price <= 0 {
		return 0
	}
	switch {
	case price < budgetPriceMax:
		return 1
	case price < midPriceMax:
		return 2
	default:
		return 3
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
