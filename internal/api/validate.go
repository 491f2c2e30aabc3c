package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/verba/internal/models"
)

const maxIDLength = 128

func validateGroup(g models.EntryGroup) error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.ID, validation.Required, validation.Length(1, maxIDLength)),
		validation.Field(&g.Entries, validation.Each(validation.By(validateEntry))),
	)
}

func validateEntry(v any) error {
	e, ok := v.(models.LedgerEntry)
	if !ok {
		return errors.New("must be a ledger entry")
	}
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required, validation.Length(1, maxIDLength)),
		validation.Field(&e.PageNumber, validation.NilOrNotEmpty, validation.Min(1)),
		validation.Field(&e.HighlightIDs, validation.Each(validation.Required)),
	)
}

func validateDecision(d models.Decision) error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required, validation.Length(1, maxIDLength)),
		validation.Field(&d.Identifier, validation.Required),
		validation.Field(&d.PageNumber, validation.NilOrNotEmpty, validation.Min(1)),
	)
}
