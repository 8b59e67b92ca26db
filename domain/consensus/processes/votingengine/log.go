package votingengine

import (
	"github.com/timecoin/timed/infrastructure/logger"
	"github.com/timecoin/timed/util/panics"
)

var log = logger.RegisterSubSystem("VOTE")
var spawn = panics.GoroutineWrapperFunc(log)
