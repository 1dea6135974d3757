package gtest

import (
	"os"
	"strconv"
	"testing"
	"time"
)

// timeScale multiplies test timeouts.
// Set GDPOS_TEST_TIME_SCALE on slow machines.
var timeScale = func() float64 {
	s := os.Getenv("GDPOS_TEST_TIME_SCALE")
	if s == "" {
		return 1
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		panic("GDPOS_TEST_TIME_SCALE must be a positive number, got " + strconv.Quote(s))
	}
	return f
}()

// ScaleMs returns ms milliseconds, scaled by the test time scale.
func ScaleMs(ms int64) time.Duration {
	return time.Duration(float64(ms) * timeScale * float64(time.Millisecond))
}

// ReceiveOrTimeout returns the value received from ch,
// failing t if nothing arrives within timeout.
func ReceiveOrTimeout[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("timed out after %s waiting to receive", timeout)
	}
	panic("unreachable")
}

// ReceiveSoon is [ReceiveOrTimeout] with a short default timeout.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	return ReceiveOrTimeout(t, ch, ScaleMs(200))
}

// SendSoon sends v on ch, failing t if the send does not complete quickly.
func SendSoon[T any](t testing.TB, ch chan<- T, v T) {
	t.Helper()

	timeout := ScaleMs(200)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- v:
	case <-timer.C:
		t.Fatalf("timed out after %s waiting to send", timeout)
	}
}
