//go:build dev

package shared

const developmentBuild = true
