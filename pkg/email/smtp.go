package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"elearning_backend/internal/config"
)

// Sender 邮件发送接口，业务侧只依赖此接口，便于测试替换
type Sender interface {
	SendVerificationEmail(to, name, token string) error
	SendPasswordResetEmail(to, name, token string) error
}

type SMTPClient struct {
	config *config.EmailConfig
}

func NewSMTPClient(cfg *config.EmailConfig) *SMTPClient {
	return &SMTPClient{config: cfg}
}

type emailData struct {
	To      string
	Subject string
	Body    string
}

func (c *SMTPClient) send(data emailData) error {
	var auth smtp.Auth
	if c.config.Username != "" || c.config.Password != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	msg := fmt.Sprintf("From: %s\r\n", c.config.From)
	msg += fmt.Sprintf("To: %s\r\n", data.To)
	msg += fmt.Sprintf("Subject: %s\r\n", data.Subject)
	msg += "MIME-Version: 1.0\r\n"
	msg += "Content-Type: text/html; charset=UTF-8\r\n"
	msg += "\r\n"
	msg += data.Body

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	if err := smtp.SendMail(addr, auth, c.config.From, []string{data.To}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

var verificationTmpl = template.Must(template.New("verify_email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #007bff; color: #fff; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>验证您的邮箱</h2>
        <p>{{.Name}}，您好！请点击下方按钮完成邮箱验证：</p>
        <p><a class="button" href="{{.Link}}">验证邮箱</a></p>
        <div class="footer">
            <p>如果这不是您本人的操作，请忽略此邮件。</p>
        </div>
    </div>
</body>
</html>
`))

func (c *SMTPClient) SendVerificationEmail(to, name, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", c.config.FrontendURL, token)

	var body bytes.Buffer
	if err := verificationTmpl.Execute(&body, map[string]string{"Name": name, "Link": link}); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return c.send(emailData{
		To:      to,
		Subject: "请验证您的邮箱",
		Body:    body.String(),
	})
}

var passwordResetTmpl = template.Must(template.New("password_reset").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #007bff; color: #fff; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>重置密码</h2>
        <p>{{.Name}}，您好！请点击下方按钮重置密码，链接短期内有效：</p>
        <p><a class="button" href="{{.Link}}">重置密码</a></p>
        <div class="footer">
            <p>如果您没有申请重置密码，请忽略此邮件，您的账户仍然安全。</p>
        </div>
    </div>
</body>
</html>
`))

func (c *SMTPClient) SendPasswordResetEmail(to, name, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", c.config.FrontendURL, token)

	var body bytes.Buffer
	if err := passwordResetTmpl.Execute(&body, map[string]string{"Name": name, "Link": link}); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return c.send(emailData{
		To:      to,
		Subject: "重置您的密码",
		Body:    body.String(),
	})
}
