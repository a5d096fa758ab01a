package timer

import (
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAfter(t *testing.T) {
	Convey("After", t, func() {
		Convey("Should run the callback once after the delay", func() {
			var fired int32
			After(5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
			time.Sleep(50 * time.Millisecond)
			So(atomic.LoadInt32(&fired), ShouldEqual, 1)
		})
		Convey("Should not run the callback when canceled first", func() {
			var fired int32
			tm := After(30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
			tm.Cancel()
			time.Sleep(60 * time.Millisecond)
			So(atomic.LoadInt32(&fired), ShouldEqual, 0)
		})
	})
}

func TestCancel(t *testing.T) {
	Convey("Cancel", t, func() {
		Convey("Should be safe on a nil handle", func() {
			var tm *Timer
			So(tm.Cancel, ShouldNotPanic)
		})
		Convey("Should be safe after the timer fired", func() {
			done := make(chan struct{})
			tm := After(time.Millisecond, func() { close(done) })
			<-done
			So(tm.Cancel, ShouldNotPanic)
		})
		Convey("Should be safe when called twice", func() {
			tm := After(time.Hour, func() {})
			tm.Cancel()
			So(tm.Cancel, ShouldNotPanic)
		})
	})
}
