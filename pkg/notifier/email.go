package notifier

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/feed-collector/pkg/config"
)

// DeliveryError 重试耗尽后仍投递失败
type DeliveryError struct {
	Recipient string
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s after %d attempt(s): %v", e.Recipient, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Sender 实际的 SMTP 发送，*gomail.Dialer 满足该接口
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier 通过 SMTP 发送 HTML 通知，失败按配置重试
type EmailNotifier struct {
	from       string
	sender     Sender
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

type Option func(*EmailNotifier)

// WithSender 替换 SMTP 发送实现（测试使用）
func WithSender(s Sender) Option {
	return func(n *EmailNotifier) { n.sender = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(n *EmailNotifier) { n.logger = l }
}

func NewEmailNotifier(email config.EmailConfig, nc config.NotifierConfig, opts ...Option) *EmailNotifier {
	d := gomail.NewDialer(email.ServerAddress, email.ServerPort, email.SenderEmail, email.SenderPassword)
	d.SSL = email.SSL
	n := &EmailNotifier{
		from:       email.SenderEmail,
		sender:     d,
		maxRetries: nc.MaxRetries,
		backoff:    nc.RetryBackoff,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *EmailNotifier) build(msg Message) (*gomail.Message, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	var table string
	if msg.TablePath != "" {
		b, err := os.ReadFile(msg.TablePath)
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", msg.TablePath, err)
		}
		table = string(b)
	}
	withPlot := false
	if msg.PlotPath != "" {
		if _, err := os.Stat(msg.PlotPath); err != nil {
			return nil, fmt.Errorf("plot %s: %w", msg.PlotPath, err)
		}
		m.Embed(msg.PlotPath, gomail.SetHeader(map[string][]string{
			"Content-ID": {"<" + PlotContentID + ">"},
		}))
		withPlot = true
	}

	body, err := compose(msg.Body, table, withPlot)
	if err != nil {
		return nil, err
	}
	m.SetBody("text/html", body)
	return m, nil
}

// Send 投递一封通知，最多尝试 1+maxRetries 次，两次之间等待 backoff
func (n *EmailNotifier) Send(ctx context.Context, msg Message) error {
	m, err := n.build(msg)
	if err != nil {
		return &DeliveryError{Recipient: msg.To, Err: err}
	}

	attempts := 0
	for {
		attempts++
		err = n.sender.DialAndSend(m)
		if err == nil {
			n.logger.Info("notification sent", zap.String("recipient", msg.To), zap.Int("attempts", attempts))
			return nil
		}
		if attempts > n.maxRetries {
			return &DeliveryError{Recipient: msg.To, Attempts: attempts, Err: err}
		}
		n.logger.Warn("send failed, will retry", zap.String("recipient", msg.To),
			zap.Duration("backoff", n.backoff), zap.Error(err))

		t := time.NewTimer(n.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return &DeliveryError{Recipient: msg.To, Attempts: attempts, Err: ctx.Err()}
		case <-t.C:
		}
	}
}
