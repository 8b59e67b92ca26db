package proofassembler

import (
	"github.com/timecoin/timed/infrastructure/logger"
)

var log = logger.RegisterSubSystem("PRFA")
