package timing

import (
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
)

func TestTimeoutWatch_Latches(t *testing.T) {
	fc := fakeclock.NewFakeClock(time.Unix(0, 0))
	w := startWatch(fc, time.Second)
	assert.False(t, w.IsTimeOut())
	assert.Equal(t, time.Second, w.Timeout())

	fc.Increment(999 * time.Millisecond)
	assert.False(t, w.IsTimeOut())

	fc.Increment(time.Millisecond)
	assert.True(t, w.IsTimeOut())
	assert.Equal(t, time.Second, w.Elapsed())

	// the clock going backwards must not un-expire the watch
	fc.Increment(-time.Hour)
	assert.True(t, w.IsTimeOut())
}

func TestTimeoutWatch_RealClock(t *testing.T) {
	assert.True(t, StartWatch(0).IsTimeOut())
	assert.False(t, StartWatch(time.Hour).IsTimeOut())
}

func TestTimeoutOf(t *testing.T) {
	assert.True(t, Timeout{}.IsZero())
	assert.False(t, TimeoutOf(0).IsZero())
	assert.Equal(t, time.Duration(0), TimeoutOf(-time.Second).Duration())
	assert.Equal(t, time.Minute, TimeoutOf(time.Minute).Duration())
}
