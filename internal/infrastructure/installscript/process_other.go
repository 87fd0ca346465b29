//go:build !unix

package installscript

import "os/exec"

// Без process groups остается WaitDelay: по нему Wait закрывает пайпы
func killProcessGroup(*exec.Cmd) {}
