package metrics

import (
	"github.com/timecoin/timed/infrastructure/logger"
	"github.com/timecoin/timed/util/panics"
)

var log = logger.RegisterSubSystem("MTRC")
var spawn = panics.GoroutineWrapperFunc(log)
