package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto the config.
//
// SEARCH_TERMS replaces the configured queries with one query per comma-separated
// term, inheriting location, sources and page count from the first configured query.
// LOCATION, SOURCES and MAX_PAGES_TO_SCRAPE then apply to every query.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []error
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	setInt := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: not an integer: %q", key, v))
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	setString("DATABASE_URL", &c.DatabaseURL)
	setString("LOG_LEVEL", &c.Log.Level)

	if v, ok := get("CHECK_INTERVAL_MINUTES"); ok {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CHECK_INTERVAL_MINUTES: not an integer: %q", v))
		} else {
			c.CheckInterval = Duration(time.Duration(minutes) * time.Minute)
		}
	}

	if v, ok := get("SEARCH_TERMS"); ok {
		template := types.Query{Location: "remote", Sources: []string{"indeed"}, MaxPages: DefaultMaxPages}
		if len(c.Queries) > 0 {
			template = c.Queries[0]
		}
		var queries []types.Query
		for _, term := range splitList(v) {
			q := template
			q.SearchTerm = term
			q.Sources = append([]string(nil), template.Sources...)
			queries = append(queries, q)
		}
		c.Queries = queries
	}
	if v, ok := get("LOCATION"); ok {
		for i := range c.Queries {
			c.Queries[i].Location = v
		}
	}
	if v, ok := get("SOURCES"); ok {
		sources := splitList(v)
		for i := range c.Queries {
			c.Queries[i].Sources = append([]string(nil), sources...)
		}
	}
	if v, ok := get("MAX_PAGES_TO_SCRAPE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_PAGES_TO_SCRAPE: not an integer: %q", v))
		} else {
			for i := range c.Queries {
				c.Queries[i].MaxPages = n
			}
		}
	}

	setString("SMTP_SERVER", &c.Notify.Email.SMTPServer)
	setInt("SMTP_PORT", &c.Notify.Email.SMTPPort)
	setString("EMAIL_SENDER", &c.Notify.Email.Sender)
	setString("EMAIL_PASSWORD", &c.Notify.Email.Password)
	setString("EMAIL_RECIPIENT", &c.Notify.Email.Recipient)

	setString("ADZUNA_APP_ID", &c.Sources.Adzuna.AppID)
	setString("ADZUNA_APP_KEY", &c.Sources.Adzuna.AppKey)
	setString("ADZUNA_COUNTRY", &c.Sources.Adzuna.Country)

	setString("WEBHOOK_URL", &c.Notify.Webhook.URL)
	setString("REDIS_URL", &c.Notify.Redis.URL)
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.Notify.Kafka.Brokers = splitList(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config error: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
