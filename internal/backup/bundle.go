package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tazhate/birthdaybot/internal/domain"
	"github.com/tazhate/birthdaybot/internal/export"
)

const (
	FileICS   = "birthdays.ics"
	FileVCard = "birthdays.vcf"
	FileText  = "birthdays.txt"
)

// BirthdayLister loads one chat's birthdays.
type BirthdayLister interface {
	ListBirthdaysByChat(ctx context.Context, chatID int64) ([]*domain.Birthday, error)
}

// Mirror receives a copy of every bundled chat, e.g. a CalDAV calendar.
type Mirror interface {
	MirrorAll(ctx context.Context, birthdays []*domain.Birthday, now time.Time) error
}

// File is one attachment of a bundle.
type File struct {
	Name string
	Data []byte
}

// Bundle is what a chat receives as its backup.
type Bundle struct {
	ChatID int64
	Count  int
	Files  []File
}

type Builder struct {
	store  BirthdayLister
	clock  domain.Clock
	mirror Mirror
	logger *zap.Logger
}

func NewBuilder(store BirthdayLister, clock domain.Clock, logger *zap.Logger) *Builder {
	return &Builder{store: store, clock: clock, logger: logger}
}

// WithMirror makes Build also push each chat's birthdays to m. Mirror
// failures are logged and do not fail the build.
func (b *Builder) WithMirror(m Mirror) *Builder {
	b.mirror = m
	return b
}

// Build renders the chat's birthdays as .ics, .vcf and a plain text file
// that can be pasted back into /add.
func (b *Builder) Build(ctx context.Context, chatID int64) (*Bundle, error) {
	birthdays, err := b.store.ListBirthdaysByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list birthdays %d: %w", chatID, err)
	}
	now := b.clock.Now()

	ics, err := export.ICS(birthdays, now)
	if err != nil {
		return nil, err
	}
	vcf, err := export.VCard(birthdays)
	if err != nil {
		return nil, err
	}

	if b.mirror != nil {
		if err := b.mirror.MirrorAll(ctx, birthdays, now); err != nil {
			b.logger.Warn("mirror birthdays", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}

	files := []File{
		{Name: FileICS, Data: ics},
		{Name: FileVCard, Data: vcf},
		{Name: FileText, Data: []byte(BatchText(birthdays))},
	}
	return &Bundle{ChatID: chatID, Count: len(birthdays), Files: files}, nil
}

// BatchText renders birthdays as alternating name and date lines, the same
// format /add accepts.
func BatchText(birthdays []*domain.Birthday) string {
	var sb strings.Builder
	for _, b := range birthdays {
		sb.WriteString(b.Name)
		sb.WriteByte('\n')
		sb.WriteString(b.FormatDate())
		sb.WriteByte('\n')
	}
	return sb.String()
}
