//go:build !fips

package crypto

const fipsBuild = false
