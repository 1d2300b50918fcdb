// Package meta holds build metadata shared by the CLI commands.
package meta

// Version is the gomymcp release version.
const Version = "0.1.0"
