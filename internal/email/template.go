package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const passwordResetSubject = "Reset your password"

var passwordResetTemplate = template.Must(template.New("passwordReset").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 5px;
        }
        .button {
            display: inline-block;
            background-color: #4F46E5;
            color: white !important;
            padding: 12px 30px;
            text-decoration: none;
            border-radius: 5px;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="content">
        <h2>Hi {{.Name}},</h2>
        <p>We received a request to reset the password for your account.</p>

        <a href="{{.ResetLink}}" class="button" style="color: white !important;">Reset Password</a>

        <p>Or copy and paste this link into your browser:</p>
        <p style="word-break: break-all; color: #4F46E5;">{{.ResetLink}}</p>

        <p style="margin-top: 30px;">If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
    </div>
    <div class="footer">
        <p>This link will expire in {{.ExpiresIn}}.</p>
    </div>
</body>
</html>
`))

type passwordResetData struct {
	Name      string
	ResetLink string
	ExpiresIn string
}

// renderPasswordReset returns the HTML and plain text bodies
func renderPasswordReset(name, resetLink string, validFor time.Duration) (string, string, error) {
	if name == "" {
		name = "there"
	}

	data := passwordResetData{
		Name:      name,
		ResetLink: resetLink,
		ExpiresIn: humanDuration(validFor),
	}

	var buf bytes.Buffer
	if err := passwordResetTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute template: %w", err)
	}

	text := fmt.Sprintf(
		"Hi %s,\n\nOpen the link below to reset your password:\n\n%s\n\nThis link will expire in %s. If you didn't request a password reset, you can ignore this email.\n",
		data.Name, data.ResetLink, data.ExpiresIn,
	)

	return buf.String(), text, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
