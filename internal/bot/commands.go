package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/arvelk/jukebot/internal/music"
	"github.com/arvelk/jukebot/internal/voice"
)

const (
	msgJoinVoiceFirst = "Join a voice channel first."
	msgNeedVoice      = "You need to be in a voice channel first."
	msgNeedURL        = "Give me a link to play."
	msgJoinFailed     = "Couldn't join your voice channel."
	msgEmptyQueue     = "The queue is empty."
)

// channelNotifier replies into the text channel a command came from.
type channelNotifier struct {
	s         *discordgo.Session
	channelID string
}

func (n channelNotifier) Announce(text string) {
	n.s.ChannelMessageSend(n.channelID, text)
}

func (b *Bot) notifier(m *discordgo.MessageCreate) music.Notifier {
	return channelNotifier{s: b.Session, channelID: m.ChannelID}
}

func (b *Bot) handleJoin(s *discordgo.Session, m *discordgo.MessageCreate) {
	vs, err := s.State.VoiceState(m.GuildID, m.Author.ID)
	if err != nil || vs.ChannelID == "" {
		s.ChannelMessageSend(m.ChannelID, msgJoinVoiceFirst)
		return
	}

	conn, err := voice.Dial(s, m.GuildID, vs.ChannelID, b.resolver, b.log.WithField("guild", m.GuildID))
	if err != nil {
		b.log.WithError(err).WithField("guild", m.GuildID).Error("voice join failed")
		s.ChannelMessageSend(m.ChannelID, msgJoinFailed)
		return
	}

	b.players.GetOrCreate(m.GuildID).Connect(conn, b.notifier(m))
}

func (b *Bot) handlePlay(s *discordgo.Session, m *discordgo.MessageCreate, url string) {
	if url == "" {
		s.ChannelMessageSend(m.ChannelID, msgNeedURL)
		return
	}

	if vs, err := s.State.VoiceState(m.GuildID, m.Author.ID); err != nil || vs.ChannelID == "" {
		s.ChannelMessageSend(m.ChannelID, msgNeedVoice)
		return
	}

	// The player announces queueing, refusals and resolution failures
	// itself; errors here are already reported to the channel.
	p := b.players.GetOrCreate(m.GuildID)
	if err := p.Enqueue(context.Background(), url, b.notifier(m)); err != nil {
		b.log.WithError(err).WithField("guild", m.GuildID).Debug("play command rejected")
	}
}

func (b *Bot) handlePause(m *discordgo.MessageCreate) {
	b.players.GetOrCreate(m.GuildID).Pause(b.notifier(m))
}

func (b *Bot) handleResume(m *discordgo.MessageCreate) {
	b.players.GetOrCreate(m.GuildID).Resume(b.notifier(m))
}

func (b *Bot) handleSkip(m *discordgo.MessageCreate) {
	b.players.GetOrCreate(m.GuildID).Skip(b.notifier(m))
}

func (b *Bot) handleLeave(m *discordgo.MessageCreate) {
	b.players.GetOrCreate(m.GuildID).Leave(b.notifier(m))
}

func (b *Bot) handleQueue(m *discordgo.MessageCreate) {
	n := b.notifier(m)

	items := b.players.GetOrCreate(m.GuildID).QueueSnapshot()
	if len(items) == 0 {
		n.Announce(msgEmptyQueue)
		return
	}

	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "[%d] %s\n", item.Position, item.Title)
	}
	n.Announce(strings.TrimRight(sb.String(), "\n"))
}
