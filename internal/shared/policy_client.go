//go:build verily_client

package shared

const trustedContext = false
