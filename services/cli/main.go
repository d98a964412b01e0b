// Консольный клиент авторизации: интерактивная проверка входа, регистрации
// и жизненного цикла сессии против работающего auth-сервиса.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rentline/internal/authclient"
	"github.com/rentline/internal/config"
	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/passkey"
	"github.com/rentline/internal/session"
	"github.com/rentline/internal/tokenstore/cookiefile"
)

func main() {
	logger.SetPrefix("cli")
	cfg := config.Load()

	store := cookiefile.New(cfg.Client.CookiePath)
	var mgr *session.Manager
	client := authclient.New(cfg.Client.APIBaseURL, store, passkey.Unsupported(), func() {
		if mgr != nil {
			mgr.HandleSessionExpired()
		}
	})

	wsURL := strings.Replace(cfg.Client.APIBaseURL, "http", "ws", 1) + "/auth/ws"
	mgr = session.New(client, store, session.Options{
		Notify:           func(msg string) { fmt.Println(">>", msg) },
		Navigate:         func(route string) { fmt.Println("-> переход:", route) },
		InactivityWindow: cfg.Client.InactivityWindow,
		RevocationURL:    wsURL,
	})
	defer mgr.Close()

	ctx := context.Background()
	mgr.Init(ctx)

	fmt.Println("Команды: login, register, passkey, add-passkey, profile, logout, state, quit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		// Любая команда — активность пользователя.
		mgr.Touch()
		switch strings.TrimSpace(sc.Text()) {
		case "login":
			email := prompt(sc, "email")
			password := prompt(sc, "пароль")
			if err := mgr.Login(ctx, email, password); err != nil {
				fmt.Println("ошибка:", err)
			}
		case "register":
			req := authclient.RegisterRequest{
				Email:     prompt(sc, "email"),
				FirstName: prompt(sc, "имя"),
				LastName:  prompt(sc, "фамилия"),
				IsTenant:  true,
			}
			req.Password = prompt(sc, "пароль")
			req.PasswordConfirm = prompt(sc, "пароль ещё раз")
			if err := mgr.Register(ctx, req); err != nil {
				fmt.Println("ошибка:", err)
			}
		case "passkey":
			if err := mgr.LoginWithPasskey(ctx, prompt(sc, "email")); err != nil {
				fmt.Println("ошибка:", err)
			}
		case "add-passkey":
			if err := mgr.RegisterPasskey(ctx); err != nil {
				fmt.Println("ошибка:", err)
			}
		case "profile":
			u, err := client.Profile(ctx)
			if err != nil {
				fmt.Println("ошибка:", err)
				continue
			}
			fmt.Printf("%s <%s> passkey=%v\n", u.FullName, u.Email, u.HasPasskey)
		case "logout":
			mgr.Logout(ctx)
		case "state":
			fmt.Println(mgr.State())
			if u := mgr.CurrentUser(); u != nil {
				fmt.Println("пользователь:", u.Email)
			}
		case "quit", "exit":
			return
		case "":
		default:
			fmt.Println("неизвестная команда")
		}
	}
}

func prompt(sc *bufio.Scanner, label string) string {
	if label != "" {
		fmt.Print(label + ": ")
	}
	if !sc.Scan() {
		return ""
	}
	return strings.TrimSpace(sc.Text())
}
