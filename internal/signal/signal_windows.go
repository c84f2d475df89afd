//go:build windows
// +build windows

package signal

import (
	"syscall"
)

var signalMap = map[syscall.Signal]signalInfo{
	syscall.SIGABRT: {"SIGABRT", true, syscall.SIGABRT},
	syscall.SIGFPE:  {"SIGFPE", true, syscall.SIGFPE},
	syscall.SIGHUP:  {"SIGHUP", true, syscall.SIGHUP},
	syscall.SIGILL:  {"SIGILL", true, syscall.SIGILL},
	syscall.SIGINT:  {"SIGINT", true, syscall.SIGINT},
	syscall.SIGKILL: {"SIGKILL", true, syscall.SIGKILL},
	syscall.SIGSEGV: {"SIGSEGV", true, syscall.SIGSEGV},
	syscall.SIGTERM: {"SIGTERM", true, syscall.SIGTERM},
}

func signalName(sig syscall.Signal) string {
	if info, ok := signalMap[sig]; ok {
		return info.name
	}
	return ""
}

func isTerminationSignalInternal(sig syscall.Signal) bool {
	if info, ok := signalMap[sig]; ok {
		return info.isTermination
	}
	return false
}

func getSignalNum(sig string) int {
	if num, ok := nameToSignal[sig]; ok {
		return int(num)
	}
	return int(syscall.SIGTERM)
}
