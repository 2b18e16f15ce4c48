package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"orders-ai/internal/config"
	"orders-ai/internal/engine"
)

// Mailer 通过 SMTP 发送运行结果告警。
// 配置不完整时所有发送变为空操作，不影响主流程。
type Mailer struct {
	cfg    config.NotifyConfig
	logger *zap.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer 创建邮件告警器。
func NewMailer(cfg config.NotifyConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{cfg: cfg, logger: logger, send: smtp.SendMail}
}

// NotifyReport 在订单实际提交后发送执行摘要。
func (m *Mailer) NotifyReport(report engine.Report) {
	if !m.cfg.Enabled() {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "模式: %s\n", report.Mode)
	fmt.Fprintf(&b, "预算: %.2f %s，上限: %.2f %s，买入总额: %.2f %s\n",
		report.BudgetSafe, report.Currency,
		report.BudgetCap, report.Currency,
		report.TotalBuy, report.Currency)
	for _, res := range report.Results {
		fmt.Fprintf(&b, "- %s %v %s @ %.4f → %s", res.Order.Action, res.Order.Quantity,
			res.Order.Symbol, res.LimitPrice, res.State)
		if res.Reason != "" {
			fmt.Fprintf(&b, " (%s)", res.Reason)
		}
		b.WriteString("\n")
	}

	subject := fmt.Sprintf("[orders-ai] 已提交 %d 笔订单", len(report.Results)-report.Rejected())
	if report.Rejected() > 0 {
		subject = fmt.Sprintf("[orders-ai] 提交完成，%d 笔被拒绝", report.Rejected())
	}
	m.deliver(subject, b.String())
}

// NotifyError 在运行失败时发送告警。
func (m *Mailer) NotifyError(stage string, err error) {
	if !m.cfg.Enabled() || err == nil {
		return
	}
	subject := fmt.Sprintf("[orders-ai] 运行失败: %s", stage)
	body := fmt.Sprintf("时间: %s\n阶段: %s\n错误: %v\n",
		time.Now().UTC().Format(time.RFC3339), stage, err)
	m.deliver(subject, body)
}

func (m *Mailer) deliver(subject, body string) {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.cfg.SMTPUser, m.cfg.EmailTo, subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPServer, m.cfg.SMTPPort)
	auth := smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPassword, m.cfg.SMTPServer)
	if err := m.send(addr, auth, m.cfg.SMTPUser, []string{m.cfg.EmailTo}, []byte(msg)); err != nil {
		m.logger.Warn("发送邮件告警失败", zap.Error(err))
		return
	}
	m.logger.Info("邮件告警已发送", zap.String("subject", subject))
}
