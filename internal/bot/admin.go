package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"kol-referral-bot/internal/models"
)

// Telegram rejects messages longer than this; /listkols output is cut to fit.
const maxMessageLen = 4096

const truncationMarker = "\n… (list truncated)"

// requireAdmin gates the admin surface: private chat plus the configured
// allow-list. A rejection is a reply, never an error.
func (b *Bot) requireAdmin(ctx context.Context, message telego.Message, log *zap.Logger) bool {
	if message.Chat.Type != telego.ChatTypePrivate {
		b.reply(ctx, message.Chat.ID, "Please use this command in a private chat with the bot.", log)
		return false
	}
	if message.From == nil || !b.cfg.IsAdmin(message.From.ID) {
		b.reply(ctx, message.Chat.ID, "You are not authorized to use this command.", log)
		return false
	}
	return true
}

func (b *Bot) HandleCreateLink(ctx context.Context, message telego.Message) {
	log := b.opLogger("createlink").With(zap.Int64("chat_id", message.Chat.ID))
	if !b.requireAdmin(ctx, message, log) {
		return
	}

	kolName := commandArg(message.Text)
	if kolName == "" {
		b.reply(ctx, message.Chat.ID, "Usage: /createlink <KOL name>", log)
		return
	}

	link, err := b.transport.CreateChatInviteLink(ctx, &telego.CreateChatInviteLinkParams{
		ChatID: tu.ID(b.cfg.GroupID),
		Name:   kolName,
	})
	if err != nil {
		log.Error("failed to create invite link", zap.Error(err))
		b.reply(ctx, message.Chat.ID, "Failed to create an invite link, please try again.", log)
		return
	}

	if err := b.links.Create(ctx, &models.KolLink{InviteLink: link.InviteLink, KolName: kolName}); err != nil {
		// The platform-side link exists either way; losing the mapping
		// silently would orphan it.
		log.Error("failed to persist invite link", zap.Error(err), zap.String("invite_link", link.InviteLink))
		b.reply(ctx, message.Chat.ID, fmt.Sprintf(
			"⚠️ Link created but NOT tracked (database error):\n%s\nJoins via this link will not be attributed to %s.",
			link.InviteLink, kolName), log)
		return
	}

	log.Info("invite link created", zap.String("kol", kolName))
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("Invite link for %s:\n%s", kolName, link.InviteLink), log)
}

func (b *Bot) HandleListKols(ctx context.Context, message telego.Message) {
	log := b.opLogger("listkols").With(zap.Int64("chat_id", message.Chat.ID))
	if !b.requireAdmin(ctx, message, log) {
		return
	}

	links, err := b.links.List(ctx)
	if err != nil {
		log.Error("failed to list invite links", zap.Error(err))
		b.reply(ctx, message.Chat.ID, "Failed to read the link registry, please try again.", log)
		return
	}
	if len(links) == 0 {
		b.reply(ctx, message.Chat.ID, "No KOL links created yet. Use /createlink <name>.", log)
		return
	}

	var sb strings.Builder
	sb.WriteString("KOL invite links:\n")
	lastKol := ""
	for _, link := range links {
		if link.KolName != lastKol {
			sb.WriteString("\n" + link.KolName + ":\n")
			lastKol = link.KolName
		}
		sb.WriteString(link.InviteLink + "\n")
	}

	b.reply(ctx, message.Chat.ID, truncate(sb.String(), maxMessageLen), log)
}

func (b *Bot) HandleRefCount(ctx context.Context, message telego.Message) {
	log := b.opLogger("refcount").With(zap.Int64("chat_id", message.Chat.ID))
	if !b.requireAdmin(ctx, message, log) {
		return
	}

	kolName := commandArg(message.Text)
	count, err := b.referrals.CountVerified(ctx, kolName)
	if err != nil {
		log.Error("failed to count referrals", zap.Error(err))
		b.reply(ctx, message.Chat.ID, "Failed to count referrals, please try again.", log)
		return
	}

	if kolName == "" {
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("Verified referrals (all KOLs): %d", count), log)
		return
	}

	if count == 0 {
		// Zero can mean "nobody verified yet" or "no such KOL at all";
		// admins care which.
		exists, err := b.referrals.HasReferrals(ctx, kolName)
		if err != nil {
			log.Error("failed to check referral existence", zap.Error(err))
			b.reply(ctx, message.Chat.ID, "Failed to count referrals, please try again.", log)
			return
		}
		if !exists {
			b.reply(ctx, message.Chat.ID, fmt.Sprintf("No referrals found for %q.", kolName), log)
			return
		}
		b.reply(ctx, message.Chat.ID, fmt.Sprintf("Verified referrals for %q: 0 (referrals exist, none verified yet)", kolName), log)
		return
	}

	b.reply(ctx, message.Chat.ID, fmt.Sprintf("Verified referrals for %q: %d", kolName, count), log)
}

// commandArg returns the free-text argument after the command word, if any.
func commandArg(text string) string {
	parts := strings.SplitN(text, " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len(truncationMarker)
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
