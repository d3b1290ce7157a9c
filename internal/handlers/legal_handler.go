package handlers

import (
	"html"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// SettingReader is the part of SettingsService the legal pages need.
type SettingReader interface {
	String(key, fallback string) string
}

type LegalHandler struct {
	settings     SettingReader
	supportEmail string
}

func NewLegalHandler(settings SettingReader, supportEmail string) *LegalHandler {
	return &LegalHandler{settings: settings, supportEmail: supportEmail}
}

func (h *LegalHandler) name() string {
	return html.EscapeString(h.settings.String(services.SettingMarketplaceName, "LinkMarket"))
}

const legalStyle = `<style>body{font-family:-apple-system,BlinkMacSystemFont,sans-serif;max-width:800px;margin:0 auto;padding:20px;color:#333}h1{color:#1a1a1a}h2{color:#444;margin-top:30px}</style>`

func (h *LegalHandler) PrivacyPolicy(c *fiber.Ctx) error {
	name := h.name()
	email := html.EscapeString(h.supportEmail)

	return c.Type("html").SendString(`<!DOCTYPE html>
<html><head><title>Privacy Policy - ` + name + `</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
` + legalStyle + `
</head><body>
<h1>Privacy Policy</h1>
<p>Last updated: October 2026</p>
<h2>Information We Collect</h2>
<p>We collect your email address, order and delivery details, and the content you publish on bio pages. Visits to bio pages are counted with the device type, country and referring site; we do not store raw IP addresses.</p>
<h2>How We Use Your Information</h2>
<p>Your data is used to operate ` + name + `, process orders, deliver through our courier and PAXI partners, and show page owners aggregated analytics.</p>
<h2>Integrations</h2>
<p>Credentials you connect for automations (Slack, Trello, Google Sheets, webhooks) are never shown back through the API and are only used to run the automations you configure.</p>
<h2>Data Storage</h2>
<p>Your data is stored on secured servers. We do not sell your personal information to third parties.</p>
<h2>Account Deletion</h2>
<p>You can delete your account and all associated pages, automations and analytics at any time from your dashboard.</p>
<h2>Contact</h2>
<p>For questions about this policy, contact us at ` + email + `</p>
</body></html>`)
}

func (h *LegalHandler) TermsOfService(c *fiber.Ctx) error {
	name := h.name()
	email := html.EscapeString(h.supportEmail)

	return c.Type("html").SendString(`<!DOCTYPE html>
<html><head><title>Terms of Service - ` + name + `</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
` + legalStyle + `
</head><body>
<h1>Terms of Service</h1>
<p>Last updated: October 2026</p>
<h2>Acceptance</h2>
<p>By using ` + name + `, you agree to these terms.</p>
<h2>Vendors</h2>
<p>Vendors are responsible for the accuracy of their listings and stock levels. Listings are reviewed before they are shown and may be removed if they break these terms.</p>
<h2>Orders and Delivery</h2>
<p>Prices are shown in South African Rand and include VAT where applicable. Orders can be cancelled while they are still pending.</p>
<h2>User Conduct</h2>
<p>You agree not to publish offensive, illegal, or harmful content on listings or bio pages. We reserve the right to moderate and remove content that violates our guidelines.</p>
<h2>Termination</h2>
<p>We may suspend or terminate accounts that violate these terms.</p>
<h2>Contact</h2>
<p>For questions, contact us at ` + email + `</p>
</body></html>`)
}
