// Package term обеспечивает интерактивную аутентификацию аккаунта
// через терминал: код подтверждения и пароль 2FA.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// Terminal реализует auth.UserAuthenticator поверх stdin/stdout.
type Terminal struct {
	phone   string
	in      *bufio.Reader
	out     io.Writer
	stdinfd int
}

var _ auth.UserAuthenticator = (*Terminal)(nil)

// NewTerminal создает аутентификатор для одного номера телефона.
func NewTerminal(phone string) *Terminal {
	return &Terminal{
		phone:   phone,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		stdinfd: int(os.Stdin.Fd()),
	}
}

// Phone возвращает номер, под которым выполняется вход.
func (t *Terminal) Phone(_ context.Context) (string, error) {
	return t.phone, nil
}

// Code запрашивает код подтверждения, присланный Telegram.
func (t *Terminal) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Fprintf(t.out, "Введите код подтверждения для %s: ", t.phone)
	code, err := t.in.ReadString('\n')
	if err != nil {
		return "", xerrors.Errorf("failed to read code: %w", err)
	}
	return strings.TrimSpace(code), nil
}

// Password запрашивает пароль 2FA без эха.
func (t *Terminal) Password(_ context.Context) (string, error) {
	fmt.Fprint(t.out, "Введите пароль 2FA: ")
	bytePwd, err := term.ReadPassword(t.stdinfd)
	if err != nil {
		return "", err
	}
	fmt.Fprintln(t.out)
	return string(bytePwd), nil
}

// AcceptTermsOfService принимает Условия обслуживания.
func (t *Terminal) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	fmt.Fprintf(t.out, "Принимаем Условия обслуживания: %s\n", tos.Text)
	return nil
}

// SignUp не поддерживается: экспортер работает только с существующими
// аккаунтами.
func (t *Terminal) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, xerrors.New("signup not supported")
}
