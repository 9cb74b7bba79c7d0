package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hsh0702/boardsum/store"
	"github.com/hsh0702/boardsum/summarize"
	"github.com/hsh0702/boardsum/utils"
	Logger "github.com/hsh0702/boardsum/utils/log"
)

const (
	maxDigestItems  = 300
	bestPostLimit   = 6
	recentPostLimit = 5

	defaultWindowHours  = 6
	autoDigestTickEvery = 5 * time.Minute
)

// Bot wires the Discord session to the store and the digest summarizer.
type Bot struct {
	session          *discordgo.Session
	db               *gorm.DB
	digestSummarizer *summarize.Client

	// fallback delivery for operators who never ran /autoinfo
	fallbackChannelId int64
	fallbackHours     int

	stopAutoDigest chan struct{}
}

// New builds the bot from the given token. The session is not opened yet,
// call Start.
func New(token string, db *gorm.DB) (*Bot, error) {
	if token == "" {
		return nil, errors.New("missing Discord bot token")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "fail to create Discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	return &Bot{
		session:           session,
		db:                db,
		digestSummarizer:  newDigestSummarizer(),
		fallbackChannelId: int64(utils.GetEnvInt("DIGEST_CHANNEL_ID", 0)),
		fallbackHours:     maxInt(utils.GetEnvInt("DIGEST_HOURS", defaultWindowHours), 1),
		stopAutoDigest:    make(chan struct{}),
	}, nil
}

// Start opens the gateway connection, registers the slash commands and
// launches the auto digest loop.
func (bot *Bot) Start() error {
	bot.session.AddHandler(bot.handleInteraction)
	bot.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		Logger.Log.Infof("logged in as %s#%s", r.User.Username, r.User.Discriminator)
	})

	if err := bot.session.Open(); err != nil {
		return errors.Wrap(err, "fail to open Discord gateway")
	}
	if err := bot.registerCommands(); err != nil {
		return err
	}
	go bot.autoDigestLoop()
	return nil
}

// Stop shuts down the digest loop and the gateway connection.
func (bot *Bot) Stop() error {
	close(bot.stopAutoDigest)
	return bot.session.Close()
}

func (bot *Bot) registerCommands() error {
	minHours := float64(1)
	hoursOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "hours",
		Description: "조회할 시간 (1-48시간 사이)",
		MinValue:    &minHours,
		MaxValue:    48,
	}
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "best",
			Description: "최근 핫 토픽을 보여줍니다.",
			Options:     []*discordgo.ApplicationCommandOption{hoursOption},
		},
		{
			Name:        "digest",
			Description: "최근 이슈를 요약 정리합니다.",
			Options:     []*discordgo.ApplicationCommandOption{hoursOption},
		},
		{
			Name:        "recent",
			Description: "최근 요약된 게시물 목록을 보여줍니다.",
		},
		{
			Name:        "autoinfo",
			Description: "이 채널에 정해진 주기로 이슈를 보내도록 설정합니다.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "hours",
					Description: "알림 주기 시간 (1-48시간 사이)",
					MinValue:    &minHours,
					MaxValue:    48,
					Required:    true,
				},
			},
		},
	}

	appId := bot.session.State.User.ID
	for _, command := range commands {
		if _, err := bot.session.ApplicationCommandCreate(appId, "", command); err != nil {
			return errors.Wrapf(err, "fail to register command %s", command.Name)
		}
	}
	return nil
}

func (bot *Bot) handleInteraction(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := interaction.ApplicationCommandData()
	switch data.Name {
	case "best":
		bot.handleBest(interaction, optionHours(data, defaultWindowHours))
	case "digest":
		bot.handleDigest(interaction, optionHours(data, defaultWindowHours))
	case "recent":
		bot.handleRecent(interaction)
	case "autoinfo":
		bot.handleAutoInfo(interaction, optionHours(data, defaultWindowHours))
	}
}

func optionHours(data discordgo.ApplicationCommandInteractionData, fallback int) int {
	for _, option := range data.Options {
		if option.Name == "hours" {
			hours := int(option.IntValue())
			if hours >= 1 && hours <= 48 {
				return hours
			}
		}
	}
	return fallback
}

func (bot *Bot) handleBest(interaction *discordgo.InteractionCreate, hours int) {
	bot.deferResponse(interaction)

	posts, err := store.BestPosts(bot.db, time.Duration(hours)*time.Hour, bestPostLimit)
	if err != nil {
		bot.followupText(interaction, fmt.Sprintf("데이터를 불러오지 못했습니다: %v", err), true)
		return
	}
	if len(posts) == 0 {
		bot.followupText(interaction,
			fmt.Sprintf("최근 %d시간 이내의 베스트 게시물을 찾지 못했습니다.", hours), true)
		return
	}
	bot.followupEmbed(interaction, BuildBestEmbed(posts, hours))
}

func (bot *Bot) handleDigest(interaction *discordgo.InteractionCreate, hours int) {
	bot.deferResponse(interaction)

	entries, err := store.DigestEntries(bot.db, time.Duration(hours)*time.Hour, maxDigestItems)
	if err != nil {
		bot.followupText(interaction, fmt.Sprintf("데이터를 불러오지 못했습니다: %v", err), true)
		return
	}
	if len(entries) == 0 {
		bot.followupText(interaction,
			fmt.Sprintf("최근 %d시간 이내에 요약된 게시물이 없습니다.", hours), true)
		return
	}

	digestText, _, err := bot.SummarizeDigest(context.Background(), entries, hours)
	if err != nil {
		Logger.Log.Warnf("digest summarization failed: %v", err)
		digestText = ""
	}
	bot.followupEmbed(interaction, BuildDigestEmbed(hours, digestText))
}

func (bot *Bot) handleRecent(interaction *discordgo.InteractionCreate) {
	bot.deferResponse(interaction)

	posts, err := store.LatestSummaries(bot.db, recentPostLimit)
	if err != nil {
		bot.followupText(interaction, fmt.Sprintf("데이터를 불러오지 못했습니다: %v", err), true)
		return
	}
	if len(posts) == 0 {
		bot.followupText(interaction, "아직 요약된 게시물이 없습니다.", true)
		return
	}
	bot.followupEmbed(interaction, BuildRecentEmbed(posts))
}

func (bot *Bot) handleAutoInfo(interaction *discordgo.InteractionCreate, hours int) {
	if interaction.GuildID == "" {
		bot.respondText(interaction, "DM에서는 자동 이슈 등록를 설정할 수 없습니다.", true)
		return
	}

	channelId, err := strconv.ParseInt(interaction.ChannelID, 10, 64)
	if err != nil {
		bot.respondText(interaction, "이 타입의 채널에서는 자동 이슈 등록을 설정할 수 없습니다.", true)
		return
	}
	var guildId *int64
	if parsed, err := strconv.ParseInt(interaction.GuildID, 10, 64); err == nil {
		guildId = &parsed
	}

	intervalMinutes := maxInt(hours*60, 5)
	if err := store.UpsertDigestSubscription(bot.db, guildId, channelId, hours, intervalMinutes); err != nil {
		Logger.Log.Errorf("fail to save digest subscription: %v", err)
		bot.respondText(interaction, fmt.Sprintf("설정 저장에 실패했습니다: %v", err), true)
		return
	}
	bot.respondText(interaction,
		fmt.Sprintf("✅ 이 채널에 **%d시간마다** 자동으로 이슈를 보내도록 설정했습니다.", hours), true)
}

// autoDigestLoop delivers digests to every due subscription, falling back
// to the configured default channel while no subscription exists.
func (bot *Bot) autoDigestLoop() {
	ticker := time.NewTicker(autoDigestTickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-bot.stopAutoDigest:
			return
		case <-ticker.C:
			bot.runAutoDigestPass()
		}
	}
}

func (bot *Bot) runAutoDigestPass() {
	subscriptions, err := store.DueDigestSubscriptions(bot.db)
	if err != nil {
		Logger.Log.Errorf("fail to load digest subscriptions: %v", err)
		subscriptions = nil
	}

	if len(subscriptions) == 0 {
		if bot.fallbackChannelId != 0 {
			bot.deliverDigest(fmt.Sprintf("%d", bot.fallbackChannelId), bot.fallbackHours)
		}
		return
	}

	for _, subscription := range subscriptions {
		hours := subscription.HoursWindow
		if hours < 1 {
			hours = bot.fallbackHours
		}
		interval := subscription.IntervalMinutes
		if interval < 1 {
			interval = 60
		}

		bot.deliverDigest(fmt.Sprintf("%d", subscription.ChannelId), hours)
		// an empty window still advances the schedule, otherwise the
		// subscription would retry every tick
		if err := store.MarkSubscriptionRun(bot.db, subscription.Id, interval); err != nil {
			Logger.Log.Errorf("fail to advance subscription %d: %v", subscription.Id, err)
		}
	}
}

// deliverDigest sends one digest embed to the channel, reporting whether
// anything was sent.
func (bot *Bot) deliverDigest(channelId string, hours int) bool {
	entries, err := store.DigestEntries(bot.db, time.Duration(hours)*time.Hour, maxDigestItems)
	if err != nil {
		Logger.Log.Errorf("fail to load digest entries: %v", err)
		return false
	}
	if len(entries) == 0 {
		return false
	}

	digestText, _, err := bot.SummarizeDigest(context.Background(), entries, hours)
	if err != nil {
		Logger.Log.Warnf("auto digest summarization failed: %v", err)
		digestText = ""
	}

	if _, err := bot.session.ChannelMessageSendEmbed(channelId, BuildDigestEmbed(hours, digestText)); err != nil {
		Logger.Log.Errorf("fail to send digest to channel %s: %v", channelId, err)
		return false
	}
	return true
}

func (bot *Bot) deferResponse(interaction *discordgo.InteractionCreate) {
	err := bot.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		Logger.Log.Errorf("fail to defer interaction: %v", err)
	}
}

func (bot *Bot) respondText(interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}
	if ephemeral {
		response.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := bot.session.InteractionRespond(interaction.Interaction, response); err != nil {
		Logger.Log.Errorf("fail to respond to interaction: %v", err)
	}
}

func (bot *Bot) followupText(interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	params := &discordgo.WebhookParams{Content: content}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := bot.session.FollowupMessageCreate(interaction.Interaction, true, params); err != nil {
		Logger.Log.Errorf("fail to send followup: %v", err)
	}
}

func (bot *Bot) followupEmbed(interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	params := &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}}
	if _, err := bot.session.FollowupMessageCreate(interaction.Interaction, true, params); err != nil {
		Logger.Log.Errorf("fail to send followup embed: %v", err)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
