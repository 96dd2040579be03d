// Package doctor validates lyftr configuration before the service starts.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattjoyce/lyftr/internal/config"
	"github.com/mattjoyce/lyftr/internal/log"
	"github.com/mattjoyce/lyftr/internal/storage"
)

// minSecretLength is the shortest webhook secret accepted without a warning.
const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg     *config.Config
	checkFS func(path string) error
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, checkFS: storage.CheckFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateService(r)
	d.validateHTTP(r)
	d.validateWebhook(r)
	d.validateDatabase(r)
	d.warnStats(r)
	d.warnEvents(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateService(r *Result) {
	if !log.ValidLevel(d.cfg.Service.LogLevel) {
		d.addWarning(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q; INFO will be used", d.cfg.Service.LogLevel))
	}
	switch strings.ToLower(d.cfg.Service.LogFormat) {
	case "json", "text":
	default:
		d.addWarning(r, "service", "service.log_format",
			fmt.Sprintf("unknown log format %q; json will be used", d.cfg.Service.LogFormat))
	}
}

func (d *Doctor) validateHTTP(r *Result) {
	h := d.cfg.HTTP
	if h.Listen == "" {
		d.addError(r, "http", "http.listen", "http.listen is required")
	} else if _, port, err := net.SplitHostPort(h.Listen); err != nil {
		d.addError(r, "http", "http.listen", fmt.Sprintf("invalid listen address %q: %v", h.Listen, err))
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		d.addError(r, "http", "http.listen", fmt.Sprintf("invalid port %q", port))
	}

	if h.ReadinessTimeout > 0 && h.WriteTimeout > 0 && h.ReadinessTimeout >= h.WriteTimeout {
		d.addWarning(r, "http", "http.readiness_timeout",
			"readiness_timeout is not shorter than write_timeout; probes may be cut off")
	}
}

func (d *Doctor) validateWebhook(r *Result) {
	w := d.cfg.Webhook
	switch {
	case w.Secret == "":
		d.addError(r, "webhook", "webhook.secret",
			"WEBHOOK_SECRET is not set; every webhook will be rejected and readiness will fail")
	case len(w.Secret) < minSecretLength:
		d.addWarning(r, "webhook", "webhook.secret",
			fmt.Sprintf("secret is shorter than %d characters", minSecretLength))
	}
	if w.MaxBodyBytes > 0 && w.MaxBodyBytes < 1024 {
		d.addWarning(r, "webhook", "webhook.max_body_size",
			fmt.Sprintf("max_body_size %s leaves little room for a message", w.MaxBodySize))
	}
}

func (d *Doctor) validateDatabase(r *Result) {
	db := d.cfg.Database
	path := db.Path()
	if path == "" {
		d.addError(r, "database", "database.url", "DATABASE_URL is required")
		return
	}
	if strings.Contains(db.URL, "://") && !strings.HasPrefix(strings.TrimSpace(db.URL), "sqlite://") {
		d.addError(r, "database", "database.url",
			fmt.Sprintf("unsupported database URL %q; only sqlite:// is supported", db.URL))
		return
	}

	var nfsErr *storage.NetworkFilesystemError
	switch err := d.checkFS(path); {
	case errors.As(err, &nfsErr):
		d.addError(r, "database", "database.filesystem",
			fmt.Sprintf("%s is a network filesystem; move the database to local disk", nfsErr.FSType))
	case err != nil:
		d.addError(r, "database", "database.url", err.Error())
	}

	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil {
		d.addWarning(r, "database", "database.url",
			fmt.Sprintf("directory %q does not exist yet; it will be created on start", dir))
	} else if !info.IsDir() {
		d.addError(r, "database", "database.url", fmt.Sprintf("%q is not a directory", dir))
	}

	if !db.Lock {
		d.addWarning(r, "database", "database.lock",
			"PID lock disabled; two instances could share one database")
	}
}

func (d *Doctor) warnStats(r *Result) {
	if d.cfg.Stats.TopSenders == 0 {
		d.addWarning(r, "stats", "stats.top_senders",
			"top_senders is 0; /stats will list every sender")
	}
}

func (d *Doctor) warnEvents(r *Result) {
	if d.cfg.Events.Buffer <= 0 {
		d.addWarning(r, "events", "events.buffer",
			"events.buffer is not positive; the default of 100 will be used")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	writeIssues(&b, "ERROR", r.Errors)
	writeIssues(&b, "WARN ", r.Warnings)
	return b.String()
}

func writeIssues(b *strings.Builder, label string, issues []Issue) {
	for _, i := range issues {
		if i.Field != "" {
			fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, i.Category, i.Field, i.Message)
		} else {
			fmt.Fprintf(b, "  %s [%s] %s\n", label, i.Category, i.Message)
		}
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
