// File: internal/infra/telegram/notifier.go
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*Notifier)(nil)

// Notifier pushes activation and payment events to the user's Telegram
// chat. Account ids are Telegram chat ids, so no extra mapping is needed.
// Send failures are logged and dropped; the core flows never depend on
// delivery.
type Notifier struct {
	bot *tgbotapi.BotAPI
	log *zerolog.Logger
}

func NewNotifier(bot *tgbotapi.BotAPI, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &Notifier{bot: bot, log: &l}
}

func (n *Notifier) ActivationUpdated(ctx context.Context, a *model.Activation) {
	n.send(a.AccountID, activationText(a))
}

func (n *Notifier) PaymentSettled(ctx context.Context, accountID int64, amount, newBalance int64) {
	text := fmt.Sprintf("✅ Pagamento aprovado!\n\n💵 Valor: %s\n💰 Saldo atual: %s",
		FormatCentavos(amount), FormatCentavos(newBalance))
	n.send(accountID, text)
}

func (n *Notifier) ReferralBonusPaid(ctx context.Context, accountID int64, bonus, newBalance int64) {
	text := fmt.Sprintf("🎁 Bônus de indicação!\n\nVocê recebeu %s porque um indicado seu recarregou.\n💰 Saldo atual: %s",
		FormatCentavos(bonus), FormatCentavos(newBalance))
	n.send(accountID, text)
}

func activationText(a *model.Activation) string {
	var b strings.Builder
	switch {
	case len(a.Codes) > 0:
		fmt.Fprintf(&b, "📨 SMS recebido para %s!\n\n", a.ServiceKey)
		fmt.Fprintf(&b, "📞 Número: `%s`\n", a.LocalNumber)
		if len(a.Codes) == 1 {
			fmt.Fprintf(&b, "🔑 Código: `%s`\n", a.Codes[0])
		} else {
			b.WriteString("🔑 Códigos:\n")
			for _, c := range a.Codes {
				fmt.Fprintf(&b, "  • `%s`\n", c)
			}
		}
		if !a.Settled {
			b.WriteString("\nPrecisa de outro código? Use o botão de reenviar antes do tempo acabar.")
		}
	case a.Settled:
		b.WriteString(outcomeText(a))
	default:
		fmt.Fprintf(&b, "📞 Número comprado para %s!\n\n", a.ServiceKey)
		fmt.Fprintf(&b, "Número: `%s`\nCompleto: `%s`\n", a.LocalNumber, a.FullNumber)
		fmt.Fprintf(&b, "💸 Preço: %s\n\nAguardando SMS...", FormatCentavos(a.Price))
	}
	return b.String()
}

func outcomeText(a *model.Activation) string {
	switch a.Outcome {
	case model.OutcomeUserCancelled:
		return fmt.Sprintf("🚫 Ativação cancelada.\n\n%s foi devolvido ao seu saldo.", FormatCentavos(a.Price))
	case model.OutcomeProviderCancelled:
		return fmt.Sprintf("⚠️ O fornecedor cancelou o número %s.\n\n%s foi devolvido ao seu saldo.", a.LocalNumber, FormatCentavos(a.Price))
	case model.OutcomeTimedOut:
		return fmt.Sprintf("⏰ Tempo esgotado sem receber SMS.\n\n%s foi devolvido ao seu saldo.", FormatCentavos(a.Price))
	default:
		return fmt.Sprintf("✅ Ativação de %s concluída.", a.ServiceKey)
	}
}

// FormatCentavos renders an int64 centavo amount as "R$ 1,23".
func FormatCentavos(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%sR$ %d,%02d", sign, v/100, v%100)
}

func (n *Notifier) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
	}
}
