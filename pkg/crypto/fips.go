package crypto

import "github.com/pzverkov/pqshare/internal/constants"

// FIPSMode reports whether the binary was built with the fips tag. In FIPS
// mode only AES-256-GCM is accepted and a failed self-test panics.
func FIPSMode() bool { return fipsBuild }

// AllowedSuites lists the cipher suites NewAEAD accepts in this build.
func AllowedSuites() []constants.CipherSuite {
	if fipsBuild {
		return []constants.CipherSuite{constants.CipherSuiteAES256GCM}
	}
	return []constants.CipherSuite{constants.CipherSuiteAES256GCM, constants.CipherSuiteChaCha20Poly1305}
}
