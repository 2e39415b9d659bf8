// Package telegram implements notify.Notifier by POSTing to Telegram's
// Bot API directly with internal/httpclient.Client, the same client used
// for upstream catalog calls.
package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/httpclient"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/notify"
)

// maxChars is Telegram's text message length ceiling.
const maxChars = 4096

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResult struct {
	MessageID int `json:"message_id"`
}

type sendMessageResponse struct {
	OK     bool              `json:"ok"`
	Result sendMessageResult `json:"result"`
}

// Notifier posts job summaries to a single configured chat.
type Notifier struct {
	http   *httpclient.Client
	apiURL string // botApi + botToken, e.g. https://api.telegram.org/bot<token>
	chatID string
	log    *logrus.Entry
}

// New builds a Notifier. botAPI and botToken concatenate into the
// endpoint root, e.g. https://api.telegram.org/bot<token>.
func New(http *httpclient.Client, botAPI, botToken, chatID string, log *logrus.Entry) *Notifier {
	return &Notifier{http: http, apiURL: botAPI + botToken, chatID: chatID, log: log}
}

// Notify renders summary into a MarkdownV2 message and sends it.
func (n *Notifier) Notify(ctx context.Context, summary notify.Summary) error {
	message := render(summary)

	var resp sendMessageResponse
	url := fmt.Sprintf("%s/sendMessage", n.apiURL)
	req := sendMessageRequest{ChatID: n.chatID, Text: message, ParseMode: "MarkdownV2"}
	if err := n.http.PostJSON(ctx, url, req, &resp); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram: API reported failure sending summary for job %s", summary.Job)
	}
	n.log.WithFields(logrus.Fields{"job": summary.Job, "messageId": resp.Result.MessageID}).Info("telegram: summary sent")
	return nil
}

// render builds the escaped MarkdownV2 body for summary, truncating the
// per-project detail block to stay under maxChars.
func render(summary notify.Summary) string {
	head := EscapeMarkdownV2(headline(summary))
	tag := EscapeMarkdownV2("\n#" + summary.Tag)

	message := head
	if len(summary.NewProjects) > 0 {
		message += EscapeMarkdownV2("\n以下格式为 项目名(项目ID): 版本数量\n")
		budget := maxChars - len(message) - len(tag)
		message += spoilerBlock(summary.NewProjects, budget)
	}
	message += tag
	return message
}

func headline(summary notify.Summary) string {
	if summary.FailedCount > 0 {
		return fmt.Sprintf("%s %s 完成，共处理 %d 个项目，%d 个失败\n", summary.Platform, summary.Job, summary.Total, summary.FailedCount)
	}
	return fmt.Sprintf("%s %s 完成，共处理 %d 个项目\n", summary.Platform, summary.Job, summary.Total)
}

// spoilerBlock packs as many escaped detail lines as fit in budget into a
// Telegram expandable block quotation ("**", then "> "-prefixed lines,
// then "||"), dropping the rest rather than truncating mid-line.
func spoilerBlock(lines []notify.ProjectLine, budget int) string {
	const prefix = "> "
	budget -= 4 // "**" + "||"

	var assembled []string
	used := 0
	for _, line := range lines {
		text := fmt.Sprintf("%s(%s): %d", line.Name, line.ID, line.VersionCount)
		escaped := prefix + EscapeMarkdownV2(text)
		increment := len(escaped)
		if len(assembled) > 0 {
			increment++ // joining newline
		}
		if used+increment > budget {
			break
		}
		assembled = append(assembled, escaped)
		used += increment
	}
	return "**" + strings.Join(assembled, "\n") + "||"
}
