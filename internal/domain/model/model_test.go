package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/osena/curator/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalizeText(t *testing.T) {
	Convey("Given text with mixed case and whitespace", t, func() {
		Convey("Then normalization lowercases and collapses whitespace", func() {
			So(model.NormalizeText("  Hello   WORLD\n\tfoo "), ShouldEqual, "hello world foo")
		})

		Convey("Then an empty string stays empty", func() {
			So(model.NormalizeText("   "), ShouldEqual, "")
		})
	})
}

func TestContentHash(t *testing.T) {
	Convey("Given two bodies differing only in formatting", t, func() {
		a := model.ContentHash("The quick   brown fox.")
		b := model.ContentHash("the QUICK brown\nfox.")

		Convey("Then they hash identically", func() {
			So(a, ShouldEqual, b)
			So(len(a), ShouldEqual, 64)
		})

		Convey("And a different body hashes differently", func() {
			So(model.ContentHash("something else"), ShouldNotEqual, a)
		})
	})
}

func TestSlugify(t *testing.T) {
	Convey("Given assorted titles", t, func() {
		So(model.Slugify("Hello, World!"), ShouldEqual, "hello-world")
		So(model.Slugify("  2026 Mid-Year Review  "), ShouldEqual, "2026-mid-year-review")
		So(model.Slugify("---"), ShouldEqual, "")
	})
}

func TestWindowKeys(t *testing.T) {
	Convey("Given a fixed instant", t, func() {
		ts := time.Date(2026, 9, 1, 14, 37, 12, 0, time.UTC)

		Convey("Then DayKey formats the UTC date", func() {
			So(model.DayKey(ts), ShouldEqual, "2026-09-01")
		})

		Convey("Then HourKey truncates to the hour", func() {
			So(model.HourKey(ts), ShouldEqual, time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC))
		})

		Convey("And non-UTC inputs convert to UTC windows", func() {
			loc := time.FixedZone("plus2", 2*60*60)
			local := time.Date(2026, 9, 2, 1, 15, 0, 0, loc) // 23:15 UTC the day before
			So(model.DayKey(local), ShouldEqual, "2026-09-01")
		})
	})
}

func TestNewID(t *testing.T) {
	Convey("Given generated ids", t, func() {
		a := model.NewID()
		b := model.NewID()

		Convey("Then they are unique and well formed", func() {
			So(a, ShouldNotEqual, b)
			So(strings.Count(a, "-"), ShouldEqual, 4)
		})
	})
}

func TestCandidateScored(t *testing.T) {
	Convey("Given a candidate without a score", t, func() {
		c := model.Candidate{ID: model.NewID(), Status: model.StatusPending}
		So(c.Scored(), ShouldBeFalse)

		Convey("When a score is assigned", func() {
			score := 7.0
			c.QualityScore = &score
			So(c.Scored(), ShouldBeTrue)
		})
	})
}
