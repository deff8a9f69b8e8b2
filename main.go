package main

import (
	"github.com/deskline/chatgate/cmd/server"
)

func main() {
	s := server.NewServer()
	defer s.Shutdown()
	s.Run()
}
