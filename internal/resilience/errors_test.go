package resilience

import (
	"errors"
	"net/textproto"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad input"), false},
		{"http 503", &StatusError{Scheme: "http", Code: 503}, true},
		{"http 404", &StatusError{Scheme: "http", Code: 404}, false},
		{"ftp 421", &StatusError{Scheme: "ftp", Code: 421}, true},
		{"ftp 550", &StatusError{Scheme: "ftp", Code: 550}, false},
		{"textproto 425", &textproto.Error{Code: 425, Msg: "can't open data"}, true},
		{"textproto 550", &textproto.Error{Code: 550, Msg: "no such file"}, false},
		{"wrapped status", eris.Wrap(&StatusError{Scheme: "http", Code: 502}, "download"), true},
		{"conn reset", syscall.ECONNRESET, true},
		{"conn refused", eris.Wrap(syscall.ECONNREFUSED, "dial"), true},
		{"pattern", errors.New("read tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Scheme: "http", Code: 500, Target: "https://x/y"}
	assert.Equal(t, "http status 500 from https://x/y", err.Error())
}
