package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hsh0702/boardsum/bot"
	. "github.com/hsh0702/boardsum/utils"
	"github.com/hsh0702/boardsum/utils/dotenv"
	. "github.com/hsh0702/boardsum/utils/log"
)

func main() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		Log.Fatal("fail to load env : ", err)
	}

	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		token = os.Getenv("BOT_TOKEN")
	}
	if token == "" {
		Log.Fatal("DISCORD_BOT_TOKEN is not set")
	}

	db, err := GetDBConnection()
	if err != nil {
		Log.Fatal("fail to connect database : ", err)
	}
	DatabaseSetupAndMigration(db)

	digestBot, err := bot.New(token, db)
	if err != nil {
		Log.Fatal("fail to create bot : ", err)
	}
	if err := digestBot.Start(); err != nil {
		Log.Fatal("fail to start bot : ", err)
	}
	Log.Info("bot is up")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if err := digestBot.Stop(); err != nil {
		Log.Error("fail to shut down bot : ", err)
	}
}
