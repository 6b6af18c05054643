package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gotftp/tftp/internal/utils"
	"github.com/gotftp/tftp/pkg/eventlog"
	"github.com/gotftp/tftp/pkg/server"
)

var (
	tftpPort    = utils.GetEnv[string]("TFTP_PORT", "69", false)
	logLevel    = utils.GetEnv[string]("LOG_LEVEL", "info", false)
	timeout     = utils.GetEnv[uint]("TFTP_TIMEOUT", "5", false)
	tftpBaseDir = utils.GetEnv[string]("TFTP_BASE_DIR", utils.DefaultServerRoot(), false)
)

func main() {
	l := utils.NewLogger(logLevel)
	defer l.Sync()

	sugar := l.Sugar()
	sink := eventlog.New(sugar)

	s := server.NewServer(sugar, sink, tftpPort, tftpBaseDir, time.Duration(timeout)*time.Second)

	go func() {
		if err := s.ListenAndServe(); err != nil {
			sugar.Error(err.Error())
		}
	}()

	sugar.Info(fmt.Sprintf("listening on port %s, serving %s", tftpPort, tftpBaseDir))

	defer func() {
		if err := s.Close(); err != nil {
			sugar.Error(err.Error())
		}

		sugar.Info(fmt.Sprintf("closed connection on port %s", tftpPort))
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan
}
