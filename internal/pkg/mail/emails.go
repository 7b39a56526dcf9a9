package mail

import (
	"fmt"

	"github.com/algomatic/backend/internal/pkg/env"
)

func appName() string {
	return env.GetEnv("APP_NAME", "Algomatic")
}

// SendWelcomeEmail greets a freshly provisioned user.
func (m *Mailer) SendWelcomeEmail(to, firstName string) error {
	name := appName()
	greeting := "Hello"
	if firstName != "" {
		greeting = fmt.Sprintf("Hello %s", firstName)
	}

	subject := fmt.Sprintf("Welcome to %s", name)
	body := fmt.Sprintf(`
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
	<h2>Welcome to %s!</h2>
	<p>%s,</p>
	<p>Your account is ready. Log in any time to get started.</p>
	<p>If you did not sign up for %s, you can safely ignore this email.</p>
	<p>The %s Team</p>
</body>
</html>`, name, greeting, name, name)

	return m.Send(to, subject, body)
}

// SendSubscriptionExpiryEmail warns a user their subscription ends soon.
func (m *Mailer) SendSubscriptionExpiryEmail(to, expiryDate string) error {
	name := appName()

	subject := fmt.Sprintf("Your %s subscription is about to expire", name)
	body := fmt.Sprintf(`
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
	<h2>Subscription expiring</h2>
	<p>Your %s subscription expires on <strong>%s</strong>.</p>
	<p>Renew now to keep access to your account without interruption.</p>
	<p>The %s Team</p>
</body>
</html>`, name, expiryDate, name)

	return m.Send(to, subject, body)
}
