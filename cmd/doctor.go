package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/remind/internal/config"
	"github.com/nextlevelbuilder/remind/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func telegramGetMe(token string) (string, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	me, err := bot.GetMe(ctx)
	if err != nil {
		return "", err
	}
	return me.Username, nil
}

func runDoctor() {
	fmt.Println("remind doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, env-only)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	check := func(name string, ok bool, detail string) {
		status := "OK"
		if !ok {
			status = "MISSING"
		}
		fmt.Printf("  %-22s %s", name+":", status)
		if detail != "" {
			fmt.Printf(" (%s)", detail)
		}
		fmt.Println()
	}

	check("Telegram token", cfg.Telegram.Token != "", "REMIND_TELEGRAM_TOKEN")
	check("OpenAI API key", cfg.OpenAI.APIKey != "", "REMIND_OPENAI_API_KEY")
	check("Default chat", cfg.Telegram.DefaultChatID != "", "optional fallback for legacy rows")

	if _, err := time.LoadLocation(cfg.Reminders.Timezone); err != nil {
		fmt.Printf("  Timezone:              INVALID (%s)\n", cfg.Reminders.Timezone)
	} else {
		fmt.Printf("  Timezone:              OK (%s)\n", cfg.Reminders.Timezone)
	}

	if cfg.Telegram.Token != "" {
		fmt.Printf("  Telegram API:          ")
		if name, err := telegramGetMe(cfg.Telegram.Token); err != nil {
			fmt.Printf("UNREACHABLE (%s)\n", err)
		} else {
			fmt.Printf("OK (@%s)\n", name)
		}
	}

	gron := gronx.New()
	check("Due sweep cron", gron.IsValid(cfg.Reminders.DueCron), cfg.Reminders.DueCron)
	check("Weekly review cron", gron.IsValid(cfg.Reminders.WeeklyCron), cfg.Reminders.WeeklyCron)

	fmt.Printf("  Pairing window:        %s (solo wait %s)\n", cfg.LinkTimeout(), cfg.SoloWait())

	path := config.ExpandHome(cfg.Store.Path)
	fmt.Printf("  Store:    %s", path)
	st, err := store.OpenSQLite(path, cfg.Reminders.Timezone)
	if err != nil {
		fmt.Printf(" (ERROR: %s)\n", err)
		return
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	undated, err := st.ListUndated(ctx, store.StatusDone, store.StatusCanceled)
	if err != nil {
		fmt.Printf(" (QUERY ERROR: %s)\n", err)
		return
	}
	fmt.Printf(" (OK, %d undated open reminders)\n", len(undated))
}
