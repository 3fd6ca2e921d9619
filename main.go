package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SmartInventory/server"

	"github.com/labstack/gommon/log"
)

func main() {
	s := server.NewServer()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("Shutting down server...")
		s.Shutdown(context.Background())
		os.Exit(0)
	}()

	s.Start(s.Config.Server.Addr)
}
