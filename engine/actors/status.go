package actors

import "sync"

var terminateChan chan struct{}
var terminateOnce sync.Once

func SetTerminateChan(term chan struct{}) {
	terminateChan = term
	terminateOnce = sync.Once{}
}

func GetTerminateChan() chan struct{} {
	return terminateChan
}

// Shutdown closes the terminate channel once, however many times it is called.
func Shutdown() {
	terminateOnce.Do(func() {
		if terminateChan != nil {
			close(terminateChan)
		}
	})
}
