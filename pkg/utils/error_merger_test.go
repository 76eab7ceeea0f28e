package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMergeErrorChans(t *testing.T) {
	defer goleak.VerifyNone(t)

	ch1 := make(chan error, 1)
	ch2 := make(chan error, 1)
	merged := MergeErrorChans(ch1, ch2)

	ch1 <- errors.New("source stopped")
	ch2 <- errors.New("server stopped")
	close(ch1)
	close(ch2)

	var got []string
	timeout := time.After(time.Second)
	for {
		select {
		case err, ok := <-merged:
			if !ok {
				assert.ElementsMatch(t, []string{"source stopped", "server stopped"}, got)
				return
			}
			got = append(got, err.Error())
		case <-timeout:
			t.Fatal("timeout waiting for merged errors")
		}
	}
}

func TestMergeErrorChansNoInputs(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, ok := <-MergeErrorChans()
	assert.False(t, ok)
}
