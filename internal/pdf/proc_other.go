//go:build !windows

package pdf

import "os/exec"

// hideConsole 仅 Windows 需要
func hideConsole(*exec.Cmd) {}
