package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/ariefcatur/go-commerce-backend/internal/orders"
)

var emailTemplates = template.Must(template.New("email").Parse(`
{{define "confirmation"}}<p>Dear {{.Name}},</p>
<p>Thank you for your order! Your order number is <strong>{{.Order.OrderNumber}}</strong>.</p>
<table>{{range .Order.Items}}
<tr><td>{{.Name}}</td><td>{{.Quantity}} &times; ${{.Price.StringFixed 2}}</td></tr>{{end}}
</table>
<p>Total Amount: <strong>${{.Order.TotalAmount.StringFixed 2}}</strong></p>
<p>We'll send you another email when your order ships.</p>{{end}}
{{define "status_update"}}<p>Dear {{.Name}},</p>
<p>Your order <strong>{{.Order.OrderNumber}}</strong> is now <strong>{{.Order.Status}}</strong>.</p>
{{if .Order.CancelReason}}<p>Reason: {{.Order.CancelReason}}</p>{{end}}{{end}}
{{define "welcome"}}<p>Dear {{.Name}},</p>
<p>Welcome to {{.App}}! We're excited to have you on board.</p>
<p>If you have any questions, feel free to reach out to our support team.</p>{{end}}
`))

type emailData struct {
	Name  string
	App   string
	Order *orders.Order
}

func render(name string, d emailData) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, d); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func greeting(name string) string {
	if name == "" {
		return "customer"
	}
	return name
}

func OrderConfirmationEmail(to, name string, o *orders.Order) (Email, error) {
	html, err := render("confirmation", emailData{Name: greeting(name), Order: o})
	if err != nil {
		return Email{}, err
	}
	text := fmt.Sprintf("Dear %s,\nThank you for your order! Your order number is %s.\nTotal Amount: $%s\nWe'll send you another email when your order ships.",
		greeting(name), o.OrderNumber, o.TotalAmount.StringFixed(2))
	return Email{To: to, Subject: "Order Confirmation - " + o.OrderNumber, Text: text, HTML: html}, nil
}

func OrderStatusEmail(to, name string, o *orders.Order) (Email, error) {
	html, err := render("status_update", emailData{Name: greeting(name), Order: o})
	if err != nil {
		return Email{}, err
	}
	text := fmt.Sprintf("Dear %s,\nYour order %s is now %s.", greeting(name), o.OrderNumber, o.Status)
	return Email{To: to, Subject: fmt.Sprintf("Order %s - %s", o.OrderNumber, o.Status), Text: text, HTML: html}, nil
}

func WelcomeEmail(to, name, app string) (Email, error) {
	html, err := render("welcome", emailData{Name: greeting(name), App: app})
	if err != nil {
		return Email{}, err
	}
	text := fmt.Sprintf("Dear %s,\nWelcome to %s! We're excited to have you on board.\nIf you have any questions, feel free to reach out to our support team.",
		greeting(name), app)
	return Email{To: to, Subject: "Welcome to " + app, Text: text, HTML: html}, nil
}

// StatusMessage is the one-line text used for in-app and push notifications.
func StatusMessage(o *orders.Order) string {
	return fmt.Sprintf("Your order %s is now %s", o.OrderNumber, o.Status)
}
