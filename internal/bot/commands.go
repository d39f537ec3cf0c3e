package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	"go.uber.org/zap"

	"kol-referral-bot/internal/store"
)

// HandleStart greets in private chat and, for tracked users, reports their
// verification status.
func (b *Bot) HandleStart(ctx context.Context, message telego.Message) {
	if message.Chat.Type != telego.ChatTypePrivate || message.From == nil {
		return
	}
	log := b.opLogger("start").With(zap.Int64("user_id", message.From.ID))

	ref, err := b.referrals.Get(ctx, message.From.ID)
	switch {
	case err == nil && ref.Verified:
		b.reply(ctx, message.Chat.ID, fmt.Sprintf(
			"Hi, %s! 👋\nYou joined via %s and are verified ✅", message.From.FirstName, ref.KolName), log)
	case err == nil:
		b.reply(ctx, message.Chat.ID, fmt.Sprintf(
			"Hi, %s! 👋\nYou joined via %s but have not verified yet. Press the verify button in the group.",
			message.From.FirstName, ref.KolName), log)
	case errors.Is(err, store.ErrNotFound):
		b.reply(ctx, message.Chat.ID, fmt.Sprintf(
			"Hi, %s! 👋\nI track KOL referrals for the community group.", message.From.FirstName), log)
	default:
		log.Error("failed to read referral", zap.Error(err))
		b.reply(ctx, message.Chat.ID, "Temporary error, please try again.", log)
	}
}

// HandleGetChatID works everywhere; it exists so admins can discover the
// group id to configure.
func (b *Bot) HandleGetChatID(ctx context.Context, message telego.Message) {
	log := b.opLogger("getchatid").With(zap.Int64("chat_id", message.Chat.ID))
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("Chat ID: %d", message.Chat.ID), log)
}
