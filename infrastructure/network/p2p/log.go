package p2p

import (
	"github.com/timecoin/timed/infrastructure/logger"
	"github.com/timecoin/timed/util/panics"
)

var log = logger.RegisterSubSystem("P2PS")
var spawn = panics.GoroutineWrapperFunc(log)
