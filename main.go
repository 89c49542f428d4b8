/*
This is an example application that exercises the resource layer end to
end: it uploads a mesh through the registry and keeps running until
interrupted.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/lumen-engine/lumen/engine"
)

func main() {
	eng, err := engine.New("Lumen Demo", "lumen.toml")
	if err != nil {
		panic(err)
	}

	if err := eng.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		<-sigCh
		_ = eng.Shutdown()
	}()

	if err := eng.Run(); err != nil {
		panic(err)
	}
}
