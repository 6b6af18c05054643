package main

import (
	"github.com/gotftp/tftp/internal/utils"
	"github.com/gotftp/tftp/pkg/client"
	"github.com/gotftp/tftp/pkg/tftp"
)

var logLevel = utils.GetEnv[string]("TFTP_LOG_LEVEL", "info", false)

func main() {
	l := utils.NewLogger(logLevel).Sugar()
	c := client.NewClient(l, tftp.NopEventSink{})

	defer func(c client.Connector) {
		if err := c.Close(); err != nil {
			l.Error(err.Error())
		}
	}(c)

	client.NewCli(l, c).Read()
}
