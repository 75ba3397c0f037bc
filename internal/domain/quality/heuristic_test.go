package quality_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/internal/domain/quality"
	. "github.com/smartystreets/goconvey/convey"
)

// richCandidate builds the reference high-quality item: 900 words, a 31-char
// five-word title, 2 headings, 4 paragraphs, 1 image, 6 filled spec fields,
// 3 tags, no red flags.
func richCandidate() *model.Candidate {
	paragraph := strings.TrimSpace(strings.Repeat("solar panel output ", 75)) // 225 words

	var b strings.Builder
	b.WriteString("<h2>Overview</h2>")
	b.WriteString("<img src=\"charger.jpg\"/>")
	for i := 0; i < 2; i++ {
		fmt.Fprintf(&b, "<p>%s</p>", paragraph)
	}
	b.WriteString("<h2>Verdict</h2>")
	for i := 0; i < 2; i++ {
		fmt.Fprintf(&b, "<p>%s</p>", paragraph)
	}

	return &model.Candidate{
		ID:         model.NewID(),
		Title:      "Great Solar Charger Field Tests",
		Body:       b.String(),
		ImageCount: 1,
		Specs: map[string]string{
			"brand": "Northstar", "model": "NS-200", "price": "149",
			"weight": "410g", "color": "black", "material": "aluminum",
		},
		Tags:   []string{"solar", "charger", "outdoors"},
		Status: model.StatusPending,
	}
}

func TestHeuristicScoreTopScenario(t *testing.T) {
	Convey("Given a 900-word item with full structure, image, specs, and tags", t, func() {
		c := richCandidate()

		Convey("Then the heuristic score is 10", func() {
			So(quality.HeuristicScore(c), ShouldEqual, 10)
		})
	})
}

func TestHeuristicScoreRange(t *testing.T) {
	Convey("Given assorted candidates", t, func() {
		candidates := []*model.Candidate{
			{},
			{Title: "x", Body: "tiny"},
			{Title: "A PERFECTLY ORDINARY SHOUTED TITLE", Body: strings.Repeat("word ", 500)},
			{Title: "Mid-length review of something useful", Body: strings.Repeat("word ", 450), Tags: []string{"a", "b"}},
			richCandidate(),
		}

		Convey("Then every score is an integer in [1,10]", func() {
			for _, c := range candidates {
				score := quality.HeuristicScore(c)
				So(score, ShouldBeGreaterThanOrEqualTo, 1)
				So(score, ShouldBeLessThanOrEqualTo, 10)
			}
		})
	})
}

func TestHeuristicPenalties(t *testing.T) {
	Convey("Given the reference high-quality item", t, func() {
		base := quality.HeuristicScore(richCandidate())

		Convey("When the title is shouted", func() {
			c := richCandidate()
			c.Title = "GREAT SOLAR CHARGER FIELD TESTS"
			So(quality.HeuristicScore(c), ShouldBeLessThan, base)
		})

		Convey("When the body carries placeholder markers", func() {
			c := richCandidate()
			c.Body += "<p>lorem ipsum dolor sit amet</p>"
			So(quality.HeuristicScore(c), ShouldBeLessThan, base)
		})

		Convey("When specs and tags are stripped", func() {
			c := richCandidate()
			c.Specs = nil
			c.Tags = nil
			So(quality.HeuristicScore(c), ShouldBeLessThan, base)
		})
	})
}

func TestHeuristicSpecCoverageBonus(t *testing.T) {
	Convey("Given an item missing only the spec-coverage bonus", t, func() {
		c := richCandidate()
		withoutBonus := quality.HeuristicScore(c)

		Convey("When 7 of the 10 key spec fields are filled", func() {
			c.Specs["warranty"] = "2 years"
			// brand, model, price, weight, color, material, warranty = 7/10

			Convey("Then the bonus cannot push past the clamp", func() {
				So(quality.HeuristicScore(c), ShouldEqual, 10)
				So(withoutBonus, ShouldEqual, 10)
			})
		})
	})
}

func TestAnalyzeBody(t *testing.T) {
	Convey("Given an HTML body", t, func() {
		a := quality.AnalyzeBody("<h1>Title</h1><p>one two three</p><p>four</p><ul><li>x</li></ul><img src='i.png'/>")

		So(a.IsHTML, ShouldBeTrue)
		So(a.HeadingCount, ShouldEqual, 1)
		So(a.ParagraphCount, ShouldEqual, 2)
		So(a.ListCount, ShouldEqual, 1)
		So(a.ImageCount, ShouldEqual, 1)
		So(a.WordCount, ShouldEqual, 6)
	})

	Convey("Given a plain-text body with markdown structure", t, func() {
		body := "# Heading one\n\nfirst paragraph here\n\n## Heading two\n\n- item\n- item\n\nsecond paragraph"
		a := quality.AnalyzeBody(body)

		So(a.IsHTML, ShouldBeFalse)
		So(a.HeadingCount, ShouldEqual, 2)
		So(a.ParagraphCount, ShouldEqual, 2)
		So(a.ListCount, ShouldEqual, 1)
	})

	Convey("Given an empty body", t, func() {
		a := quality.AnalyzeBody("")
		So(a.WordCount, ShouldEqual, 0)
		So(a.ParagraphCount, ShouldEqual, 0)
	})
}
