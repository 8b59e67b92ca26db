package ldb

import "github.com/timecoin/timed/infrastructure/logger"

var log = logger.RegisterSubSystem("KVDB")
