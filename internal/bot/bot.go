// Package bot wires the Discord gateway to the playback core: prefix
// commands come in, player operations and chat replies go out.
package bot

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/arvelk/jukebot/internal/config"
	"github.com/arvelk/jukebot/internal/music"
	"github.com/arvelk/jukebot/internal/resolver"
)

type Bot struct {
	Session *discordgo.Session

	cfg      *config.Config
	log      *logrus.Logger
	resolver *resolver.YouTube
	players  *music.Registry
	replies  *Replies
}

func New(cfg *config.Config, log *logrus.Logger) (*Bot, error) {
	replies, err := LoadReplies(cfg.RepliesFile)
	if err != nil {
		return nil, err
	}

	yt := resolver.NewYouTube(log)
	b := &Bot{
		cfg:      cfg,
		log:      log,
		resolver: yt,
		players:  music.NewRegistry(yt, log),
		replies:  replies,
	}
	b.players.OnTrackStart = b.onTrackStart
	return b, nil
}

func (b *Bot) Start() error {
	session, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("error creating Discord session: %w", err)
	}
	b.Session = session

	b.Session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildVoiceStates |
		discordgo.IntentMessageContent

	b.Session.AddHandler(b.messageHandler)

	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	b.log.WithField("prefix", b.cfg.CommandPrefix).Info("bot is now running")
	return nil
}

func (b *Bot) Stop() {
	if b.Session != nil {
		b.Session.Close()
	}
}

func (b *Bot) Run() error {
	if err := b.Start(); err != nil {
		return err
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	// Clean shutdown
	b.Stop()
	return nil
}

func (b *Bot) messageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	// Commands and playback only make sense inside a guild.
	if m.GuildID == "" {
		return
	}

	if cmd, arg, ok := splitCommand(m.Content, b.cfg.CommandPrefix); ok {
		b.dispatch(s, m, cmd, arg)
	}

	for _, reply := range b.replies.For(m.Content, m.Author.ID) {
		s.ChannelMessageSend(m.ChannelID, reply)
	}
}

func (b *Bot) dispatch(s *discordgo.Session, m *discordgo.MessageCreate, cmd, arg string) {
	switch cmd {
	case "join":
		b.handleJoin(s, m)
	case "play":
		b.handlePlay(s, m, arg)
	case "pause":
		b.handlePause(m)
	case "resume":
		b.handleResume(m)
	case "skip":
		b.handleSkip(m)
	case "queue":
		b.handleQueue(m)
	case "leave":
		b.handleLeave(m)
	}
}

// splitCommand strips the prefix and separates the command word from its
// argument. ok is false for ordinary chatter.
func splitCommand(content, prefix string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if rest == "" {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(rest, " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}

// onTrackStart surfaces the current track in the bot's presence.
func (b *Bot) onTrackStart(guildID, title string) {
	if b.Session == nil {
		return
	}
	err := b.Session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{
			Name: title,
			Type: discordgo.ActivityTypeListening,
		}},
		Status: "online",
	})
	if err != nil {
		b.log.WithError(err).WithField("guild", guildID).Debug("failed to update presence")
	}
}
