package utxocoordinator

import (
	"github.com/timecoin/timed/infrastructure/logger"
	"github.com/timecoin/timed/util/panics"
)

var log = logger.RegisterSubSystem("UTXO")
var spawn = panics.GoroutineWrapperFunc(log)
