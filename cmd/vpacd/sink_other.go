//go:build !linux

package main

import (
	"fmt"

	"github.com/virtualtestset/vpac/pkg/sink"
)

// openSink has no raw-socket backend on this GOOS; only linux ships
// one. Build and run on linux to publish against a real interface.
var openSink sink.OpenFunc = func(iface string) (sink.Sink, error) {
	return nil, fmt.Errorf("no packet-sink backend for this platform; build on linux")
}
