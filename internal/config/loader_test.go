package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/osena/curator/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	Convey("Given defaults only", t, func() {
		cfg, err := config.Load()
		So(err, ShouldBeNil)

		Convey("Then the well-known defaults hold", func() {
			So(cfg.Store, ShouldEqual, config.StoreMemory)
			So(cfg.Admission.MinQualityScore, ShouldEqual, 6)
			So(cfg.Admission.MaxPerDay, ShouldEqual, 10)
			So(cfg.Admission.MaxPerHour, ShouldEqual, 2)
			So(cfg.Dedupe.TitleSimilarityThreshold, ShouldEqual, 0.80)
			So(cfg.Dedupe.SemanticSimilarityThreshold, ShouldEqual, 0.65)
			So(cfg.Dedupe.LookbackDays, ShouldEqual, 30)
			So(cfg.ML.MinTrainingSamples, ShouldEqual, 50)
			So(cfg.Task(config.TaskIngest).Enabled, ShouldBeTrue)
			So(cfg.Task("unknown").Enabled, ShouldBeFalse)
		})
	})
}

func TestEnvOverrides(t *testing.T) {
	Convey("Given env overrides with nested keys", t, func() {
		t.Setenv("CURATOR_LOG_LEVEL", "debug")
		t.Setenv("CURATOR_QUEUE_SIZE", "500")
		t.Setenv("CURATOR_ADMISSION__MAX_PER_DAY", "5")

		cfg, err := config.Load()
		So(err, ShouldBeNil)

		Convey("Then flat and nested keys both apply", func() {
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.QueueSize, ShouldEqual, 500)
			So(cfg.Admission.MaxPerDay, ShouldEqual, 5)
		})
	})
}

func TestFileLoading(t *testing.T) {
	Convey("Given a YAML config file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "curator.yaml")
		content := []byte(`
store: memory
worker_count: 8
tasks:
  ingest:
    enabled: false
    interval_minutes: 15
sources:
  - name: reviews
    url: https://example.com/reviews
    item_selector: article.item
    title_selector: .title
    body_selector: .summary
`)
		So(os.WriteFile(path, content, 0o600), ShouldBeNil)
		t.Setenv("CURATOR_CONFIG", path)

		cfg, err := config.Load()
		So(err, ShouldBeNil)

		Convey("Then file values layer over defaults", func() {
			So(cfg.WorkerCount, ShouldEqual, 8)
			So(cfg.Task(config.TaskIngest).Enabled, ShouldBeFalse)
			So(cfg.Task(config.TaskIngest).IntervalMinutes, ShouldEqual, 15)
			So(len(cfg.Sources), ShouldEqual, 1)
			So(cfg.Sources[0].Name, ShouldEqual, "reviews")

			Convey("And untouched defaults survive", func() {
				So(cfg.Task(config.TaskAdmission).Enabled, ShouldBeTrue)
				So(cfg.Admission.MaxPerHour, ShouldEqual, 2)
			})
		})
	})
}

func TestValidation(t *testing.T) {
	Convey("Given invalid configurations", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"unknown store", func(c *config.Config) { c.Store = "postgres" }},
			{"mongo without uri", func(c *config.Config) { c.Store = config.StoreMongo }},
			{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"threshold above one", func(c *config.Config) { c.Dedupe.TitleSimilarityThreshold = 1.5 }},
			{"source without selector", func(c *config.Config) {
				c.Sources = []config.SourceConfig{{Name: "x", URL: "https://x"}}
			}},
		}

		for _, tc := range cases {
			Convey("Then "+tc.name+" is rejected", func() {
				cfg := config.New()
				tc.mutate(cfg)
				So(cfg.Validate(), ShouldWrap, config.ErrInvalidConfig)
			})
		}
	})
}
