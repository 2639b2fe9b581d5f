// Package constants centralizes defaults shared by the CLI, the API server and
// the scan core: file permissions, cache and probe timing, HTTP probe limits
// and certificate expiry windows.
package constants
