package remote

import (
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

// ParseSignal accepts "SIGINT", "INT", "int" or a signal number.
func ParseSignal(name string) (syscall.Signal, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return 0, errs.Validation("signame", "empty signal name")
	}
	if num, err := strconv.Atoi(name); err == nil {
		if num <= 0 || num > 64 {
			return 0, errs.Validation("signame", "invalid signal number %d", num)
		}
		return syscall.Signal(num), nil
	}
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, errs.Validation("signame", "unknown signal %q", name)
	}
	return sig, nil
}
