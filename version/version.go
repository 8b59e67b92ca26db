package version

import (
	"fmt"
	"strings"
	"sync"
)

const validBuildCharacters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0
)

// ProtocolVersion is sent with every peer message. Messages of another
// protocol version are refused.
const ProtocolVersion uint32 = 1

// appBuild may be set at link time with
// -ldflags "-X github.com/timecoin/timed/version.appBuild=foo".
// Builds containing characters outside validBuildCharacters are ignored.
var appBuild string

var (
	version     string
	versionOnce sync.Once
)

// Version returns the application version as a properly formed string
func Version() string {
	versionOnce.Do(func() {
		version = fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
		if isValidBuild(appBuild) && appBuild != "" {
			version = fmt.Sprintf("%s-%s", version, appBuild)
		}
	})
	return version
}

func isValidBuild(build string) bool {
	for _, r := range build {
		if !strings.ContainsRune(validBuildCharacters, r) {
			return false
		}
	}
	return true
}
