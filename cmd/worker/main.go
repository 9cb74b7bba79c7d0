package main

import (
	"context"
	"os"
	"time"

	"github.com/hsh0702/boardsum/crawler"
	"github.com/hsh0702/boardsum/summarize"
	. "github.com/hsh0702/boardsum/utils"
	"github.com/hsh0702/boardsum/utils/dotenv"
	. "github.com/hsh0702/boardsum/utils/log"
	"github.com/hsh0702/boardsum/worker"
)

const defaultWorkerQueueName = "dcinside_items"

func main() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		Log.Fatal("fail to load env : ", err)
	}

	db, err := GetDBConnection()
	if err != nil {
		Log.Fatal("fail to connect database : ", err)
	}
	DatabaseSetupAndMigration(db)

	queue, err := NewSQSMessageQueue(GetEnvString("WORKER_QUEUE", defaultWorkerQueueName), 20)
	if err != nil {
		Log.Fatal("fail to initialize message queue : ", err)
	}

	var cooldowns summarize.CooldownStore
	if os.Getenv("REDIS_HOST") != "" {
		redisCooldowns, err := summarize.NewRedisCooldowns()
		if err != nil {
			Log.Fatal("fail to connect redis : ", err)
		}
		cooldowns = redisCooldowns
	} else {
		cooldowns = summarize.NewMemoryCooldowns()
	}
	summarizer := summarize.NewClient(summarize.ConfigFromEnv(), cooldowns)

	reddit, err := crawler.NewRedditClientFromEnv()
	if err != nil {
		Log.Warn("reddit client unavailable, reddit items will fail : ", err)
	}

	processor := worker.NewItemJobProcessor(queue, db, summarizer, reddit)

	pollSeconds := GetEnvInt("WORKER_POLL_SECONDS", 5)
	if pollSeconds > 0 {
		go drainLoop(processor, time.Duration(pollSeconds)*time.Second)
	}

	router := worker.NewRouter(processor)
	Log.Info("worker starts up")
	router.Run(":" + GetEnvString("PORT", "8080"))
}

// drainLoop consumes queued item jobs continuously. An empty queue backs
// off for the full poll interval, a busy one keeps a short protective
// delay between messages.
func drainLoop(processor *worker.ItemJobProcessor, pollEvery time.Duration) {
	for {
		handled, _, err := processor.ConsumeOne(context.Background())
		if err != nil {
			Log.Error("fail to process item job : ", err)
		}
		if handled {
			time.Sleep(time.Second)
			continue
		}
		time.Sleep(pollEvery)
	}
}
