package metrics_test

import (
	"testing"

	"github.com/osena/curator/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerRegistration(t *testing.T) {
	Convey("Given a manager on a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		So(func() {
			metrics.NewManager(
				metrics.WithPrometheusRegistry(registry),
				metrics.WithNamespace("test"),
				metrics.WithSubsystem("pipeline"),
			)
		}, ShouldNotPanic)

		Convey("Then the pipeline metrics are gatherable", func() {
			families, err := registry.Gather()
			So(err, ShouldBeNil)

			names := make(map[string]bool, len(families))
			for _, f := range families {
				names[f.GetName()] = true
			}
			So(names["test_pipeline_candidates_created_total"], ShouldBeTrue)
			So(names["test_pipeline_queue_size"], ShouldBeTrue)
			So(names["test_pipeline_scoring_duration_milliseconds"], ShouldBeTrue)
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Then the package-level recorders do not panic", func() {
			So(func() {
				metrics.RecordItemIngested("reviews")
				metrics.RecordSourceFetchError("reviews")
				metrics.RecordDuplicate("content_hash")
				metrics.RecordCandidateCreated()
				metrics.RecordScoringDuration(12.5)
				metrics.RecordScoringError()
				metrics.RecordAdmissionDecision("skipped", "daily_limit")
				metrics.RecordPublication()
				metrics.RecordTaskRun("ingest", true, 0.8)
				metrics.RecordTaskRun("ingest", false, 2.0)
				metrics.UpdateQueueSize(10)
				metrics.UpdateQueueCapacity(100)
				metrics.UpdateQueueUtilization(0.1)
				metrics.UpdateWorkerCount(4)
				metrics.UpdatePendingCandidates(7)
				metrics.UpdateModelSampleCount(120)
			}, ShouldNotPanic)
		})

		Convey("And the custom registry is exposed for scraping", func() {
			So(metrics.GetRegistry(), ShouldNotBeNil)
			_, err := metrics.GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}
