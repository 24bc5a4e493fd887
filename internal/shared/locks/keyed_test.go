package locks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := NewKeyed()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("T01")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
	require.Zero(t, k.Len())
}

func TestKeyed_IndependentKeys(t *testing.T) {
	k := NewKeyed()
	unlockA := k.Lock("A")
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("B")
		unlock()
		close(done)
	}()
	<-done
	require.Equal(t, 1, k.Len())
	unlockA()
	unlockA()
	require.Zero(t, k.Len())
}
