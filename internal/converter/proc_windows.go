//go:build windows

package converter

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr hides the console window ffmpeg would otherwise flash open.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}
