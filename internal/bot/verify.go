package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"kol-referral-bot/internal/models"
	"kol-referral-bot/internal/store"
	"kol-referral-bot/internal/utils"
)

// msgNotModified is the fragment Telegram returns when an edit would leave
// the message unchanged. Two acknowledgement paths racing to the same final
// text trigger it, so an edit failing this way counts as success.
const msgNotModified = "message is not modified"

// HandleVerifyCallback performs the at-most-once verified transition. There
// is no lock around it; the store's conditional update is what keeps a
// double-click from producing two visible successes. Every branch answers
// the callback exactly once, or Telegram leaves the button spinning.
func (b *Bot) HandleVerifyCallback(ctx context.Context, callback telego.CallbackQuery) {
	log := b.opLogger("verify").With(zap.Int64("from_id", callback.From.ID))

	targetID, err := ParseVerifyToken(callback.Data)
	if err != nil {
		log.Warn("bad callback data", zap.String("data", callback.Data))
		b.answerCallback(ctx, callback.ID, "Something went wrong, please try again.", true, log)
		return
	}

	// The button is bound to the joiner; nobody else may press it for them.
	if callback.From.ID != targetID {
		b.answerCallback(ctx, callback.ID, "This button is not for you.", true, log)
		return
	}

	now := time.Now()
	ref, err := b.referrals.MarkVerified(ctx, targetID, now)
	switch {
	case err == nil:
		// This caller won the conditional update; it owns the visible
		// transition.
		log.Info("user verified", zap.String("kol", ref.KolName))
		b.answerCallback(ctx, callback.ID, "Verification successful ✅", false, log)
		b.editPrompt(ctx, callback, verifiedText(ref), log)

	case errors.Is(err, store.ErrNotFound):
		b.resolveMissedUpdate(ctx, callback, targetID, log)

	default:
		log.Error("verify update failed", zap.Error(err))
		b.answerCallback(ctx, callback.ID, "Temporary error, please try again.", true, log)
	}
}

// resolveMissedUpdate re-reads current state to tell a race loser apart from
// a deleted record.
func (b *Bot) resolveMissedUpdate(ctx context.Context, callback telego.CallbackQuery, targetID int64, log *zap.Logger) {
	ref, err := b.referrals.Get(ctx, targetID)
	switch {
	case err == nil && ref.Verified:
		b.answerCallback(ctx, callback.ID, "You are already verified ✅", false, log)
		// Best effort; the winner usually got here first.
		b.editPrompt(ctx, callback, verifiedText(ref), log)

	case errors.Is(err, store.ErrNotFound):
		log.Info("verify pressed but referral record is gone")
		b.answerCallback(ctx, callback.ID, "Referral record not found.", true, log)
		b.editPrompt(ctx, callback, "⚠️ Verification unavailable: referral record not found.", log)

	default:
		if err != nil {
			log.Error("failed to re-read referral", zap.Error(err))
		} else {
			// Unverified row after a missed conditional update means the row
			// was replaced mid-flight; a retry will sort it out.
			log.Warn("referral unverified after missed conditional update")
		}
		b.answerCallback(ctx, callback.ID, "Temporary error, please try again.", true, log)
	}
}

func (b *Bot) answerCallback(ctx context.Context, callbackID, text string, alert bool, log *zap.Logger) {
	params := tu.CallbackQuery(callbackID).WithText(text)
	if alert {
		params = params.WithShowAlert()
	}
	if err := b.transport.AnswerCallbackQuery(ctx, params); err != nil {
		log.Warn("failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) editPrompt(ctx context.Context, callback telego.CallbackQuery, text string, log *zap.Logger) {
	msg, ok := callback.Message.(*telego.Message)
	if !ok || msg == nil {
		log.Debug("prompt message inaccessible, skipping edit")
		return
	}

	_, err := b.transport.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(msg.Chat.ID),
		MessageID: msg.MessageID,
		Text:      text,
		ParseMode: telego.ModeHTML,
	})
	if err != nil && !strings.Contains(err.Error(), msgNotModified) {
		log.Warn("failed to edit prompt", zap.Error(err))
	}
}

func verifiedText(ref *models.Referral) string {
	return fmt.Sprintf("✅ %s is verified. Invited by <b>%s</b>.",
		utils.Mention(ref.TelegramID, ref.DisplayName), utils.EscapeHTML(ref.KolName))
}
