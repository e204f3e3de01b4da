//go:build !unix

package sensor

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

// There is no graceful stop for a console process here.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
