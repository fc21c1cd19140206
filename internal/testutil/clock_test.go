package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock(time.Millisecond)
	assert.Equal(t, Epoch, clock.Current())
}

func TestDeterministicClock_NowSteps(t *testing.T) {
	clock := NewDeterministicClock(time.Millisecond)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Millisecond), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Millisecond), clock.Current())
}

func TestDeterministicClock_ZeroStepIsFrozen(t *testing.T) {
	clock := NewDeterministicClock(0)
	clock.Now()
	clock.Now()
	assert.Equal(t, Epoch, clock.Current())

	clock.Advance(time.Second)
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(time.Second)
	clock.Now()
	clock.Advance(time.Hour)

	clock.Reset()
	assert.Equal(t, Epoch, clock.Current())
}

func TestDeterministicClock_ConcurrentNow(t *testing.T) {
	clock := NewDeterministicClock(time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(100*time.Millisecond), clock.Current())
}
