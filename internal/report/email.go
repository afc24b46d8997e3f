package report

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"xviarchive/internal/config"
	"xviarchive/internal/domain"
)

// Report is the content of one automated clean-up run.
type Report struct {
	Directories []domain.Directory
	Archived    []domain.Directory
	Errors      []string
	JobStart    time.Time
	JobFinish   time.Time
	// LogFile, when readable, is attached to the email.
	LogFile string
}

// Body renders the plain-text report the clinic staff receive.
func (r Report) Body() string {
	var b strings.Builder
	b.WriteString("This is an automatically generated report from the XVI Archive Tool.\n\n")
	fmt.Fprintf(&b, "The automated XVI clean up job ran from %s to %s\n\n",
		r.JobStart.Format("2006-01-02 15:04:05"), r.JobFinish.Format("2006-01-02 15:04:05"))

	if len(r.Errors) == 0 {
		b.WriteString("No errors occurred while running the scheduled job.\n")
	} else {
		b.WriteString("The following errors occurred while running the scheduled job!!!\n")
		for _, e := range r.Errors {
			b.WriteString(" - " + e + "\n")
		}
	}
	b.WriteString("\n")

	deletes := domain.Filter(r.Directories, domain.ActionDelete)
	if len(deletes) > 0 {
		b.WriteString("The following patients may be deleted from XVI:\n")
		b.WriteString("MRN\t\tName\n")
		for _, d := range deletes {
			b.WriteString(d.MRN + "\t" + d.Name + "\n")
		}
	} else {
		b.WriteString("No patients were detected for deletion\n")
	}
	b.WriteString("\n")

	if len(r.Archived) > 0 {
		b.WriteString("The following patients were archived and may be marked as inactive (do not delete) within XVI:\n")
		b.WriteString("MRN\t\tName\n")
		for _, d := range r.Archived {
			b.WriteString(d.MRN + "\t" + d.Name + "\n")
		}
		b.WriteString("\nImportant: Patients listed as archived will not appear on subsequent email reports!\n\n")
	} else {
		b.WriteString("No patients were archived\n\n")
	}
	return b.String()
}

// SendEmail delivers the report to every configured address, one message
// per recipient.
func SendEmail(cfg config.EmailReports, r Report) error {
	if cfg.Host == "" || len(cfg.Addresses) == 0 {
		return fmt.Errorf("email reports not configured")
	}

	body := r.Body()
	attachLog := false
	if r.LogFile != "" {
		if _, err := os.Stat(r.LogFile); err == nil {
			attachLog = true
			body += "The XVI archive tool log file has been attached to this email.\n"
		} else {
			body += "An error occurred attaching the XVI Archive Tool log file to this email.\n"
		}
	}

	opts := []mail.Option{mail.WithPort(cfg.Port), mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	for _, addr := range cfg.Addresses {
		msg := mail.NewMsg()
		if err := msg.From(cfg.From); err != nil {
			return fmt.Errorf("from address: %w", err)
		}
		if err := msg.To(addr); err != nil {
			return fmt.Errorf("to address %s: %w", addr, err)
		}
		msg.Subject(cfg.Name + " XVI Clean Up Report")
		msg.SetBodyString(mail.TypeTextPlain, body)
		if attachLog {
			msg.AttachFile(r.LogFile)
		}
		if err := client.DialAndSend(msg); err != nil {
			return fmt.Errorf("send report to %s: %w", addr, err)
		}
		slog.Info("email report sent", "to", addr)
	}
	return nil
}
