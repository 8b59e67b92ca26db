package app

import (
	"github.com/timecoin/timed/infrastructure/logger"
	"github.com/timecoin/timed/util/panics"
)

var log = logger.RegisterSubSystem("TIMD")
var spawn = panics.GoroutineWrapperFunc(log)
