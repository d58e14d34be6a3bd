//go:build !dev

package shared

const developmentBuild = false
