package metrics

import "net/http"

// Noop is a Collector that discards everything. It is used in tests, where
// registering Prometheus collectors twice on the default registry would
// panic.
type Noop struct{}

func (Noop) ClientConnected()              {}
func (Noop) ClientDisconnected()           {}
func (Noop) RoomJoined(string)             {}
func (Noop) CallStarted()                  {}
func (Noop) CallEnded()                    {}
func (Noop) MessageReceived(string, int)   {}
func (Noop) MessageSent(string, int)       {}
func (Noop) MessageDropped(string, string) {}
func (Noop) Handler() http.Handler         { return http.NotFoundHandler() }
