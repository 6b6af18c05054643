package utils

import "errors"

var ErrStartingServer = errors.New("error while starting the udp server")
