package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-webdav/caldav"
	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/export"
)

const (
	// Apple iCloud CalDAV endpoint
	DefaultiCloudURL = "https://caldav.icloud.com"
)

// Client mirrors birthdays into one CalDAV calendar. Every birthday is one
// calendar object named after its id, so puts overwrite.
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	logger       *zap.Logger

	mu     sync.Mutex
	client *caldav.Client
}

// NewClient creates a new CalDAV client
func NewClient(baseURL, username, password, calendarPath string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	return &Client{
		baseURL:      baseURL,
		username:     username,
		password:     password,
		calendarPath: calendarPath,
		logger:       logger,
	}
}

// IsConfigured returns true if the client has credentials and a calendar
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != "" && c.calendarPath != ""
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars returns all calendars for the user
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	var result []Calendar
	for _, cal := range cals {
		result = append(result, Calendar{
			Path:        cal.Path,
			DisplayName: cal.Name,
			Description: cal.Description,
		})
	}

	return result, nil
}

// ObjectPath is where the birthday with id lives inside the calendar.
func (c *Client) ObjectPath(id int64) string {
	p := c.calendarPath
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + fmt.Sprintf("birthday-%d.ics", id)
}

// PutBirthday creates or replaces the yearly event of b.
func (c *Client) PutBirthday(ctx context.Context, b *domain.Birthday, now time.Time) error {
	client, err := c.connect()
	if err != nil {
		return err
	}

	cal := export.NewCalendar()
	cal.Children = append(cal.Children, export.Event(b, now).Component)

	if _, err := client.PutCalendarObject(ctx, c.ObjectPath(b.ID), cal); err != nil {
		return fmt.Errorf("put birthday %d: %w", b.ID, err)
	}
	return nil
}

// DeleteBirthday removes the event of the birthday with id.
func (c *Client) DeleteBirthday(ctx context.Context, id int64) error {
	client, err := c.connect()
	if err != nil {
		return err
	}

	if err := client.RemoveAll(ctx, c.ObjectPath(id)); err != nil {
		return fmt.Errorf("delete birthday %d: %w", id, err)
	}
	return nil
}

// MirrorAll puts every birthday. It keeps going after a failure and returns
// all errors joined.
func (c *Client) MirrorAll(ctx context.Context, birthdays []*domain.Birthday, now time.Time) error {
	var errs []error
	for _, b := range birthdays {
		if err := c.PutBirthday(ctx, b, now); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Debug("caldav mirror done",
		zap.Int("birthdays", len(birthdays)),
		zap.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}
