package signal

import (
	"os"
	"syscall"
)

type signalInfo struct {
	name          string
	isTermination bool
	number        syscall.Signal
}

var nameToSignal = map[string]syscall.Signal{}

func init() {
	for sig, info := range signalMap {
		nameToSignal[info.name] = sig
	}
}

// GetSignalName returns the signal name for the given signal number
func GetSignalName(sig syscall.Signal) string {
	if name := signalName(sig); name != "" {
		return name
	}
	return ""
}

// LookupSignal returns the signal for a name like "SIGTERM", if known.
func LookupSignal(name string) (syscall.Signal, bool) {
	sig, ok := nameToSignal[name]
	return sig, ok
}

// IsTerminationSignalOS checks if the given os.Signal is a termination signal
func IsTerminationSignalOS(sis os.Signal) bool {
	sig, ok := sis.(syscall.Signal)
	if !ok {
		return false
	}
	return isTerminationSignalInternal(sig)
}

// IsTerminationSignal checks if the given signal is a termination signal
func IsTerminationSignal(sig syscall.Signal) bool {
	return isTerminationSignalInternal(sig)
}

// GetSignalNum returns the signal number for the given signal name
func GetSignalNum(sig string) int {
	return getSignalNum(sig)
}

// exitMessages are the conventional one-word reports a shell prints when a
// foreground child dies on a signal. Signals absent from the map (SIGINT,
// SIGPIPE among them) die silently.
var exitMessages = map[syscall.Signal]string{
	syscall.SIGABRT: "Aborted",
	syscall.SIGFPE:  "Floating point exception",
	syscall.SIGHUP:  "Hangup",
	syscall.SIGILL:  "Illegal instruction",
	syscall.SIGKILL: "Killed",
	syscall.SIGQUIT: "Quit",
	syscall.SIGSEGV: "Segmentation fault",
	syscall.SIGTERM: "Terminated",
}

// ExitMessage returns the conventional report for a signal death, or ""
// when the signal terminates silently.
func ExitMessage(sig syscall.Signal) string {
	return exitMessages[sig]
}

// ExitMessageForCode reports the message for a negative returncode produced
// by signal-death decoding (exit -N means killed by signal N).
func ExitMessageForCode(code int) string {
	if code >= 0 {
		return ""
	}
	return ExitMessage(syscall.Signal(-code))
}
