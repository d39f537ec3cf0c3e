package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"kol-referral-bot/internal/models"
	"kol-referral-bot/internal/store"
	"kol-referral-bot/internal/utils"
)

// HandleChatMember implements the join/leave side of the referral lifecycle.
// Only the configured target group is watched; everything else is dropped
// before any lookup happens.
func (b *Bot) HandleChatMember(ctx context.Context, event telego.ChatMemberUpdated) {
	if event.Chat.ID != b.cfg.GroupID {
		return
	}

	user := event.NewChatMember.MemberUser()
	oldStatus := event.OldChatMember.MemberStatus()
	newStatus := event.NewChatMember.MemberStatus()

	log := b.opLogger("chat_member").With(
		zap.Int64("user_id", user.ID),
		zap.String("old_status", oldStatus),
		zap.String("new_status", newStatus),
	)

	switch {
	case newStatus == telego.MemberStatusLeft || newStatus == telego.MemberStatusBanned:
		b.handleLeave(ctx, user.ID, log)
	case newStatus == telego.MemberStatusMember &&
		(oldStatus == telego.MemberStatusLeft || oldStatus == telego.MemberStatusBanned):
		b.handleJoin(ctx, event, user, log)
	default:
		// Promotions, restrictions and the like carry no referral meaning.
	}
}

func (b *Bot) handleJoin(ctx context.Context, event telego.ChatMemberUpdated, user telego.User, log *zap.Logger) {
	if event.InviteLink == nil {
		log.Info("join without invite link, not tracked")
		return
	}

	link, err := b.links.GetByURL(ctx, event.InviteLink.InviteLink)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("invite link not in registry, not tracked",
			zap.String("invite_link", event.InviteLink.InviteLink))
		return
	}
	if err != nil {
		log.Error("failed to look up invite link", zap.Error(err))
		return
	}

	// Re-joins land here too: the upsert replaces the stale row, so the
	// verification state starts over.
	ref := &models.Referral{
		TelegramID:  user.ID,
		KolName:     link.KolName,
		DisplayName: user.FirstName,
		JoinedAt:    time.Now(),
		Verified:    false,
		VerifiedAt:  nil,
	}
	if err := b.referrals.Upsert(ctx, ref); err != nil {
		log.Error("failed to save referral", zap.Error(err))
		return
	}
	log.Info("referral recorded", zap.String("kol", link.KolName))

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("✅ I'm human").WithCallbackData(VerifyToken(user.ID)),
		),
	)
	text := fmt.Sprintf("👋 Welcome, %s!\nInvited by <b>%s</b>.\n\nPlease press the button below to verify you are human.",
		utils.Mention(user.ID, user.FirstName), utils.EscapeHTML(link.KolName))

	// The record is already in place; a lost prompt only costs the button.
	_, err = b.transport.SendMessage(ctx, tu.Message(tu.ID(event.Chat.ID), text).
		WithParseMode(telego.ModeHTML).
		WithReplyMarkup(keyboard))
	if err != nil {
		log.Error("failed to send verification prompt", zap.Error(err))
	}
}

func (b *Bot) handleLeave(ctx context.Context, userID int64, log *zap.Logger) {
	deleted, err := b.referrals.Delete(ctx, userID)
	if err != nil {
		log.Error("failed to delete referral", zap.Error(err))
		return
	}
	if deleted == 0 {
		log.Info("no referral to delete")
		return
	}
	log.Info("referral deleted")
}
