package bot

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"kol-referral-bot/internal/config"
	"kol-referral-bot/internal/store"
)

// Transport is the slice of the Telegram API the handlers actually use.
// *telego.Bot satisfies it; tests substitute a recording fake.
type Transport interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	CreateChatInviteLink(ctx context.Context, params *telego.CreateChatInviteLinkParams) (*telego.ChatInviteLink, error)
}

type Bot struct {
	tg        *telego.Bot
	transport Transport
	cfg       *config.Config
	referrals store.ReferralStore
	links     store.LinkStore
	log       *zap.Logger
}

func NewBot(cfg *config.Config, referrals store.ReferralStore, links store.LinkStore, log *zap.Logger) (*Bot, error) {
	tgBot, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		tg:        tgBot,
		transport: tgBot,
		cfg:       cfg,
		referrals: referrals,
		links:     links,
		log:       log,
	}, nil
}

// Start begins long polling and blocks until the update stream ends.
// chat_member updates are not delivered unless requested explicitly.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.tg.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{
			telego.MessageUpdates,
			telego.CallbackQueryUpdates,
			telego.ChatMemberUpdates,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.tg, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	handler.Use(b.recoverMiddleware)

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.HandleStart(ctx.Context(), *update.Message)
		return nil
	}, th.CommandEqual("start"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.HandleGetChatID(ctx.Context(), *update.Message)
		return nil
	}, th.CommandEqual("getchatid"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.HandleCreateLink(ctx.Context(), *update.Message)
		return nil
	}, th.CommandEqual("createlink"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.HandleListKols(ctx.Context(), *update.Message)
		return nil
	}, th.CommandEqual("listkols"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.HandleRefCount(ctx.Context(), *update.Message)
		return nil
	}, th.CommandEqual("refcount"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.HandleVerifyCallback(ctx.Context(), *update.CallbackQuery)
		return nil
	}, th.CallbackDataPrefix(verifyPrefix))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.HandleChatMember(ctx.Context(), *update.ChatMember)
		return nil
	}, anyChatMember())

	handler.Start()
	return nil
}

// recoverMiddleware keeps one handler's panic from taking down the update
// loop; the failure is logged and the update dropped.
func (b *Bot) recoverMiddleware(ctx *th.Context, update telego.Update) error {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic",
				zap.Any("panic", r),
				zap.Int("update_id", update.UpdateID))
		}
	}()
	return ctx.Next(update)
}

func anyChatMember() th.Predicate {
	return func(_ context.Context, update telego.Update) bool {
		return update.ChatMember != nil
	}
}

// opLogger tags all log lines of one handled update with a trace id so
// interleaved handlers can be told apart.
func (b *Bot) opLogger(op string) *zap.Logger {
	return b.log.With(
		zap.String("op", op),
		zap.String("trace_id", uuid.NewString()),
	)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, log *zap.Logger) {
	if _, err := b.transport.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.Warn("failed to send reply", zap.Error(err))
	}
}
