package checkpointproducer

import (
	"github.com/timecoin/timed/infrastructure/logger"
	"github.com/timecoin/timed/util/panics"
)

var log = logger.RegisterSubSystem("CKPT")
var spawn = panics.GoroutineWrapperFunc(log)
