// Package version reports the pqshare release and the record format it
// writes.
package version

import (
	"fmt"

	"github.com/pzverkov/pqshare/internal/constants"
)

// Release is the semantic version of this build.
const Release = "0.3.0"

// Label is an optional pre-release label such as "rc1".
var Label = ""

// String returns the release prefixed with v, plus the label if set.
func String() string {
	if Label == "" {
		return "v" + Release
	}
	return "v" + Release + "-" + Label
}

// Full names the product, release and wrapped-key format version.
func Full() string {
	return fmt.Sprintf("%s %s (format %d)", constants.ProductName, String(), constants.FormatVersion)
}
