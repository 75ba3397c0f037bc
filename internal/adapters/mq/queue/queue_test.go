package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/osena/curator/internal/adapters/mq/queue"
	"github.com/osena/curator/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func rawItem(id string) queue.Item {
	return model.RawItem{ID: id, Title: "item " + id}
}

func TestEnqueueDequeue(t *testing.T) {
	ctx := context.Background()

	Convey("Given an open queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))

		Convey("When enqueueing and dequeueing items", func() {
			So(q.Enqueue(ctx, rawItem("a")), ShouldBeTrue)
			So(q.Enqueue(ctx, rawItem("b")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 2)

			out := q.Dequeue(ctx)
			first := <-out
			second := <-out

			Convey("Then items arrive in order", func() {
				So(first.ID, ShouldEqual, "a")
				So(second.ID, ShouldEqual, "b")
			})
		})
	})
}

func TestEnqueueBackpressure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a full queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		So(q.Enqueue(ctx, rawItem("a")), ShouldBeTrue)

		Convey("Then further enqueues return false without blocking", func() {
			done := make(chan bool, 1)
			go func() { done <- q.Enqueue(ctx, rawItem("b")) }()

			select {
			case accepted := <-done:
				So(accepted, ShouldBeFalse)
			case <-time.After(time.Second):
				t.Fatal("enqueue blocked on a full queue")
			}
		})
	})
}

func TestCloseDrains(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with buffered items", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		So(q.Enqueue(ctx, rawItem("a")), ShouldBeTrue)
		So(q.Enqueue(ctx, rawItem("b")), ShouldBeTrue)

		Convey("When the queue closes", func() {
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
			So(q.Enqueue(ctx, rawItem("c")), ShouldBeFalse)

			Convey("Then buffered items still drain and the channel closes", func() {
				out := q.Dequeue(ctx)
				var ids []string
				for item := range out {
					ids = append(ids, item.ID)
				}
				So(ids, ShouldResemble, []string{"a", "b"})
			})

			Convey("And closing again is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
