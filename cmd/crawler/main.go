package main

import (
	"strings"
	"time"

	"github.com/hsh0702/boardsum/crawler"
	"github.com/hsh0702/boardsum/store"
	. "github.com/hsh0702/boardsum/utils"
	"github.com/hsh0702/boardsum/utils/dotenv"
	. "github.com/hsh0702/boardsum/utils/log"
)

const (
	defaultDCInsideQueueName = "dcinside_items"
	defaultRedditQueueName   = "reddit_items"
	defaultSeedFile          = "config/sources.json"
)

func main() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		Log.Fatal("fail to load env : ", err)
	}

	db, err := GetDBConnection()
	if err != nil {
		Log.Fatal("fail to connect database : ", err)
	}
	DatabaseSetupAndMigration(db)

	seedFile := GetEnvString("SOURCES_SEED_FILE", defaultSeedFile)
	created, total, err := store.SeedSourcesFromFile(db, seedFile)
	if err != nil {
		Log.Fatal("fail to seed sources : ", err)
	}
	Log.Infof("source seed done, created %d of %d from %s", created, total, seedFile)

	dcQueue, err := NewSQSMessageQueue(GetEnvString("DCINSIDE_QUEUE", defaultDCInsideQueueName), 20)
	if err != nil {
		Log.Fatal("fail to initialize dcinside message queue : ", err)
	}
	redditQueue, err := NewSQSMessageQueue(GetEnvString("REDDIT_QUEUE", defaultRedditQueueName), 20)
	if err != nil {
		Log.Fatal("fail to initialize reddit message queue : ", err)
	}

	// Reddit sources are skipped when credentials are absent, dcinside
	// sources still run.
	reddit, err := crawler.NewRedditClientFromEnv()
	if err != nil {
		Log.Warn("reddit client unavailable, reddit sources will be skipped : ", err)
	}

	maxPosts := GetEnvInt("DCINSIDE_MAX_POSTS", 15)
	minAgeHours := GetEnvInt("DCINSIDE_MIN_POST_AGE_HOURS", 1)
	maxAgeHours := GetEnvInt("DCINSIDE_MAX_POST_AGE_HOURS", 0)
	interval := time.Duration(GetEnvInt("CRAWL_INTERVAL_MINUTES", 10)) * time.Minute

	for {
		sources, err := store.ActiveSources(db)
		if err != nil {
			Log.Error("fail to load active sources : ", err)
		}

		for _, source := range sources {
			producer := crawler.Producer{
				DB:              db,
				Queue:           dcQueue,
				Reddit:          reddit,
				MaxPosts:        maxPosts,
				MinPostAgeHours: minAgeHours,
				MaxPostAgeHours: maxAgeHours,
			}
			if strings.HasPrefix(source.Parser, "reddit") {
				if reddit == nil {
					Log.Warnf("skip source %s, no reddit credentials", source.Code)
					continue
				}
				producer.Queue = redditQueue
			}

			stats, err := producer.Run(source)
			if err != nil {
				Log.Errorf("crawl failed for source %s : %v", source.Code, err)
				continue
			}
			Log.Infof("crawl done for source %s, fetched %d filtered %d queued %d",
				source.Code, stats.Fetched, stats.Filtered, stats.Queued)
		}

		time.Sleep(interval)
	}
}
