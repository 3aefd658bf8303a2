package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// StatusError reports an unexpected HTTP status or FTP reply code.
type StatusError struct {
	Scheme string
	Code   int
	Target string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d from %s", e.Scheme, e.Code, e.Target)
}

// Transient reports whether the code is worth retrying.
func (e *StatusError) Transient() bool {
	if e.Scheme == "ftp" {
		return IsTransientFTPCode(e.Code)
	}
	return IsTransientHTTPStatus(e.Code)
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err looks like a failure a retry could fix:
// timeouts, refused or reset connections, retryable HTTP statuses and FTP
// 4xx replies.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}

	var te *textproto.Error
	if errors.As(err, &te) {
		return IsTransientFTPCode(te.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is retryable.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsTransientFTPCode reports whether an FTP reply is a transient negative
// completion (4xx). 5xx replies such as 550 (file unavailable) are permanent.
func IsTransientFTPCode(code int) bool {
	return code >= 400 && code < 500
}
