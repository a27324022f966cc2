package export

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-vcard"

	"github.com/tazhate/birthdaybot/internal/domain"
)

// BirthdayValue renders b's date as a vCard 4.0 BDAY value. Dates without a
// year use the truncated --MMDD form.
func BirthdayValue(b *domain.Birthday) string {
	if !b.HasYear {
		return b.Date.Format("--0102")
	}
	return b.Date.Format("20060102")
}

// Card builds a vCard holding b's name and birthday.
func Card(b *domain.Birthday) vcard.Card {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldVersion, "4.0")
	card.SetValue(vcard.FieldUID, fmt.Sprintf("urn:%s:birthday:%d", uidDomain, b.ID))
	card.SetValue(vcard.FieldFormattedName, b.Name)
	card.SetName(&vcard.Name{GivenName: b.Name})
	card.SetValue(vcard.FieldBirthday, BirthdayValue(b))
	return card
}

// VCard encodes all birthdays as a multi-card .vcf file.
func VCard(birthdays []*domain.Birthday) ([]byte, error) {
	var buf bytes.Buffer
	enc := vcard.NewEncoder(&buf)
	for _, b := range birthdays {
		if err := enc.Encode(Card(b)); err != nil {
			return nil, fmt.Errorf("encode vcard %d: %w", b.ID, err)
		}
	}
	return buf.Bytes(), nil
}
