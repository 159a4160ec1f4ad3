//go:build !darwin

package poller

// sleeper never fires where there is no sleep notifier.
func sleeper(listen chan bool) {}
