package log

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCapturedLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewMaskedLogger(handler), &buf
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain phone",
			in:   "вход для +79991234567 выполнен",
			want: "вход для +***masked-phone*** выполнен",
		},
		{
			name: "formatted phone",
			in:   "номер +7 (999) 123-45-67 принят",
			want: "номер +***masked-phone*** принят",
		},
		{
			name: "api hash",
			in:   "hash=0123456789abcdef0123456789abcdef",
			want: "hash=***masked-hash***",
		},
		{
			name: "no secrets",
			in:   "обычное сообщение",
			want: "обычное сообщение",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskSecrets(tt.in))
		})
	}
}

func TestMaskedLoggerMessage(t *testing.T) {
	logger, buf := newCapturedLogger()

	logger.Info("подключение к +79991234567")

	out := buf.String()
	assert.NotContains(t, out, "79991234567")
	assert.Contains(t, out, "masked-phone")
}

func TestMaskedLoggerAttrs(t *testing.T) {
	logger, buf := newCapturedLogger()

	logger.Info("session created", "phone", "+79991234567", "api_hash", "0123456789abcdef0123456789abcdef")

	out := buf.String()
	assert.NotContains(t, out, "79991234567")
	assert.NotContains(t, out, "0123456789abcdef0123456789abcdef")
	assert.Contains(t, out, "masked-phone")
	assert.Contains(t, out, "masked-hash")
}

func TestMaskedLoggerErrorValue(t *testing.T) {
	logger, buf := newCapturedLogger()

	err := errors.New("PHONE_NUMBER_INVALID: +79991234567")
	logger.Error("auth failed", "error", err)

	out := buf.String()
	assert.NotContains(t, out, "79991234567")
	assert.Contains(t, out, "PHONE_NUMBER_INVALID")
}

func TestMaskedLoggerEmitsAttrOnce(t *testing.T) {
	logger, buf := newCapturedLogger()

	logger.Info("connect", "phone", "+79991234567")

	out := buf.String()
	// Атрибут выводится ровно один раз и только в маскированном виде,
	// немаскированный оригинал в запись не переносится.
	assert.Equal(t, 1, strings.Count(out, "phone="))
	assert.NotContains(t, out, "79991234567")
}

func TestMaskedLoggerWithAttrs(t *testing.T) {
	logger, buf := newCapturedLogger()

	bound := logger.With("phone", "+79991234567")
	bound.Info("touch")

	out := buf.String()
	assert.NotContains(t, out, "79991234567")
	assert.Contains(t, out, "masked-phone")
}

func TestMaskedLoggerGroup(t *testing.T) {
	logger, buf := newCapturedLogger()

	logger.Info("grouped", slog.Group("creds", slog.String("phone", "+79991234567")))

	out := buf.String()
	assert.NotContains(t, out, "79991234567")
}

func TestMaskedLoggerKeepsOtherValues(t *testing.T) {
	logger, buf := newCapturedLogger()

	logger.Info("export done", "session", "session_79991234567", "total", 42)

	out := buf.String()
	// Имя сессии не похоже на номер телефона и не маскируется.
	assert.Contains(t, out, "session_79991234567")
	assert.Contains(t, out, "42")
}
