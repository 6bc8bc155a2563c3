//go:build linux

package main

import "github.com/virtualtestset/vpac/pkg/sink"

// openSink is the packet-sink backend this binary was built with, selected
// by GOOS the way pkg/sink registers its reference implementations.
var openSink sink.OpenFunc = sink.OpenLinux
