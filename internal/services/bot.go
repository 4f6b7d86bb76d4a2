package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"pointsledger/internal/models"

	"github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"
)

const (
	textTierUpgraded = `🏆 Congratulations! You reached <b>%s</b>.

Your purchases now earn %.2fx points.`

	textReferralCompleted = `🎉 A friend joined with your referral code <b>%s</b>.

%d points were added to your balance.`
)

// Bot delivers ledger notifications over Telegram. Users whose id is not a
// Telegram chat id are skipped.
type Bot struct {
	token string
	log   logrus.FieldLogger

	once sync.Once
	bot  *tele.Bot
	err  error
}

func NewBot(token string, log logrus.FieldLogger) (*Bot, error) {
	return &Bot{token: token, log: log}, nil
}

func (bot *Bot) client() (*tele.Bot, error) {
	bot.once.Do(func() {
		bot.bot, bot.err = tele.NewBot(tele.Settings{
			Token:   bot.token,
			Offline: true,
		})
	})
	return bot.bot, bot.err
}

func (bot *Bot) SendMsg(chatID int64, text string) error {
	b, err := bot.client()
	if err != nil {
		return err
	}

	_, err = b.Send(&tele.User{ID: chatID}, text, &tele.SendOptions{
		ParseMode: tele.ModeHTML,
	})
	return err
}

func (bot *Bot) notify(userID string, text string) {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return
	}

	if err := bot.SendMsg(chatID, text); err != nil {
		bot.log.WithError(err).WithField("user_id", userID).Warn("send telegram message")
	}
}

func (bot *Bot) TierUpgraded(ctx context.Context, account *models.Account, from models.Tier, to models.Tier) {
	go bot.notify(account.UserID, fmt.Sprintf(textTierUpgraded, to.Name, to.Multiplier))
}

func (bot *Bot) ReferralCompleted(ctx context.Context, referral *models.Referral) {
	amount := 0
	if referral.RewardAmount != nil {
		amount = *referral.RewardAmount
	}
	go bot.notify(referral.ReferrerID, fmt.Sprintf(textReferralCompleted, referral.ReferralCode, amount))
}
