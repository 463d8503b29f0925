//go:build windows

package pdf

import (
	"os/exec"
	"syscall"
)

// createNoWindow 对应 CREATE_NO_WINDOW
const createNoWindow = 0x08000000

// hideConsole keeps pdftoppm from flashing a console window
func hideConsole(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: createNoWindow}
}
