package history

import (
	"testing"
	"time"
)

func TestMutexMapRunSequentiallyWhenSameKey(t *testing.T) {
	m := NewMutexMap(10)
	key := "U1"

	sleepDuration := 100 * time.Millisecond

	routine := func(wait chan bool) {
		if err := m.Lock(key); err != nil {
			t.Errorf("Error locking key: %v", err)
		}
		time.Sleep(sleepDuration)
		m.Unlock(key) //nolint:errcheck
		wait <- true
	}

	wait1 := make(chan bool)
	wait2 := make(chan bool)

	start := time.Now()
	go routine(wait1)
	go routine(wait2)

	<-wait1
	<-wait2

	if elapsed := time.Since(start); elapsed < 2*sleepDuration {
		t.Errorf("Routines are not running sequentially, expected > %v elapsed, got %v", 2*sleepDuration, elapsed)
	}
}

func TestMutexMapRunConcurrentlyWhenDifferentKeys(t *testing.T) {
	m := NewMutexMap(10)

	sleepDuration := 100 * time.Millisecond

	routine := func(key string, wait chan bool) {
		if err := m.Lock(key); err != nil {
			t.Errorf("Error locking key: %v", err)
		}
		time.Sleep(sleepDuration)
		m.Unlock(key) //nolint:errcheck
		wait <- true
	}

	wait1 := make(chan bool)
	wait2 := make(chan bool)

	start := time.Now()
	go routine("U1", wait1)
	go routine("U2", wait2)

	<-wait1
	<-wait2

	if elapsed := time.Since(start); elapsed >= 2*sleepDuration {
		t.Errorf("Routines for different keys should not block each other, got %v elapsed", elapsed)
	}
}

func TestMutexMapMaxSize(t *testing.T) {
	m := NewMutexMap(1)

	if err := m.Lock("U1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.Lock("U2"); err == nil {
		t.Error("expected an error when exceeding max size")
		m.Unlock("U2") //nolint:errcheck
	}

	m.Unlock("U1") //nolint:errcheck

	// Entry released; a new key fits again.
	if err := m.Lock("U2"); err != nil {
		t.Errorf("unexpected error after release: %v", err)
	}
	m.Unlock("U2") //nolint:errcheck
}
