package mailer

import "embed"

const (
	FromName                = "Makao Rentals"
	maxRetires              = 3
	WelcomeTemplate         = "welcome.tmpl"
	PaymentReceiptTemplate  = "payment_receipt.tmpl"
	PaymentFailedTemplate   = "payment_failed.tmpl"
	RentReceivedTemplate    = "rent_received.tmpl"
	ReportCreatedTemplate   = "report_created.tmpl"
	RentReminderTemplate    = "rent_reminder.tmpl"
	LandlordNoticeTemplate  = "landlord_notice.tmpl"
	LandlordSummaryTemplate = "landlord_summary.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
