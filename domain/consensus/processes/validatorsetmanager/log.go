package validatorsetmanager

import (
	"github.com/timecoin/timed/infrastructure/logger"
)

var log = logger.RegisterSubSystem("VSET")
