// Package delivery 将渲染好的图片作为邮件附件发送出去。
package delivery

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"
)

// Attachment 是随邮件发送的文件。
type Attachment struct {
	Name string
	Data []byte
}

// Message 是一封待发送的邮件；To 为空时使用发送器的默认收件人。
type Message struct {
	Subject    string
	Body       string
	To         []string
	Attachment *Attachment
}

// Sender 投递一封邮件。调用方负责串行化发送顺序。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP 通过 SMTP（STARTTLS）投递邮件。
type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

var _ Sender = (*SMTP)(nil)

// Compose 构造 gomail 消息，供发送与测试复用。
func (s *SMTP) Compose(msg Message) (*gomail.Message, error) {
	to := msg.To
	if len(to) == 0 {
		to = s.To
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("邮件缺少收件人")
	}
	from := s.From
	if from == "" {
		from = s.User
	}
	if from == "" {
		return nil, fmt.Errorf("邮件缺少发件人")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if a := msg.Attachment; a != nil {
		data := a.Data
		m.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}), gomail.SetHeader(map[string][]string{"Content-Type": {"image/png"}}))
	}
	return m, nil
}

// Send 连接服务器并发送；ctx 取消时不再发起连接。
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m, err := s.Compose(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	port := s.Port
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(s.Host, port, s.User, s.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件到 %s 失败: %w", s.Host, err)
	}
	return nil
}
