// Package util collects small general-purpose helpers shared by the CLI:
// home directory resolution, registered-closer shutdown bookkeeping, a
// formatted panic helper, and a file-existence check.
package util

import "github.com/kestrel-systems/rpcsession/internal/logger"

var log = logger.GetLogger()
