// Package utils holds small helpers shared by the chatwatch commands.
package utils //nolint:revive // var-naming: utils is an acceptable package name for shared utilities

import "sync"

// MergeErrorChans forwards every error from the inputs onto one channel, which is closed
// after the last input closes. run uses it to stop on the first failing listener.
func MergeErrorChans(inputs ...<-chan error) <-chan error {
	merged := make(chan error)
	var pending sync.WaitGroup
	forward := func(in <-chan error) {
		defer pending.Done()
		for err := range in {
			merged <- err
		}
	}

	pending.Add(len(inputs))
	for _, in := range inputs {
		go forward(in)
	}
	go func() {
		pending.Wait()
		close(merged)
	}()
	return merged
}
